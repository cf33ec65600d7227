package sql

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// ParseParameterized converts caller-parameterized SQL into canonical form.
// Named queries keep their ":name" markers; positional styles (qmark, format,
// numeric) are rewritten to ":p1", ":p2", ... The number of distinct markers
// must equal the number of supplied values, and every named marker must have
// a value.
func ParseParameterized(text string, style models.ParamStyle, named map[string]any, positional []any) (models.ParameterizedQuery, error) {
	switch style {
	case models.ParamStyleNamed, "":
		if positional != nil {
			return models.ParameterizedQuery{}, apperrors.New(apperrors.KindValidation, "named parameters must be supplied as an object")
		}
		return parseNamed(text, named)
	case models.ParamStyleQmark, models.ParamStyleFormat, models.ParamStyleNumeric:
		if named != nil {
			return models.ParameterizedQuery{}, apperrors.New(apperrors.KindValidation, "positional parameters must be supplied as an array")
		}
		return parsePositional(text, style, positional)
	}
	return models.ParameterizedQuery{}, apperrors.New(apperrors.KindValidation, "param_style must be one of: named, qmark, format, numeric")
}

func mismatch(format string, args ...any) error {
	return apperrors.New(apperrors.KindPlaceholderMismatch, fmt.Sprintf(format, args...))
}

func parseNamed(text string, values map[string]any) (models.ParameterizedQuery, error) {
	toks := lex(text)
	var params []models.Parameter
	seen := make(map[string]bool)

	for i := range toks {
		if toks[i].unterminated {
			return models.ParameterizedQuery{}, apperrors.New(apperrors.KindValidation, "Query contains an unterminated quote or comment")
		}
		name, ok := placeholderAt(toks, i)
		if !ok || seen[name] {
			continue
		}
		if _, isNum := parseIndex(name); isNum {
			return models.ParameterizedQuery{}, mismatch("numeric placeholder :%s used with named parameters", name)
		}
		v, ok := values[name]
		if !ok {
			return models.ParameterizedQuery{}, mismatch("no value supplied for placeholder :%s", name)
		}
		seen[name] = true
		params = append(params, models.Parameter{Name: name, Value: v})
	}

	if len(params) != len(values) {
		var unused []string
		for k := range values {
			if !seen[k] {
				unused = append(unused, k)
			}
		}
		sort.Strings(unused)
		return models.ParameterizedQuery{}, mismatch("query has %d placeholders but %d values were supplied (unused: %s)",
			len(params), len(values), strings.Join(unused, ", "))
	}

	return models.ParameterizedQuery{CanonicalText: text, Parameters: params}, nil
}

func parsePositional(text string, style models.ParamStyle, values []any) (models.ParameterizedQuery, error) {
	toks := lex(text)
	var b strings.Builder
	count := 0
	used := make(map[int]bool)

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.unterminated {
			return models.ParameterizedQuery{}, apperrors.New(apperrors.KindValidation, "Query contains an unterminated quote or comment")
		}

		switch style {
		case models.ParamStyleQmark:
			if t.kind == tokPunct && t.text == "?" {
				count++
				fmt.Fprintf(&b, ":%s%d", PlaceholderPrefix, count)
				continue
			}
		case models.ParamStyleFormat:
			if t.kind == tokPunct && t.text == "%" && i+1 < len(toks) && toks[i+1].text == "s" && toks[i+1].start == t.end {
				count++
				fmt.Fprintf(&b, ":%s%d", PlaceholderPrefix, count)
				i++
				continue
			}
		case models.ParamStyleNumeric:
			if body, ok := placeholderAt(toks, i); ok {
				idx, isNum := parseIndex(body)
				if !isNum {
					return models.ParameterizedQuery{}, mismatch("named placeholder :%s used with numeric parameters", body)
				}
				if idx < 1 || idx > len(values) {
					return models.ParameterizedQuery{}, mismatch("placeholder :%d has no matching value (%d supplied)", idx, len(values))
				}
				used[idx] = true
				fmt.Fprintf(&b, ":%s%d", PlaceholderPrefix, idx)
				i++
				continue
			}
		}
		b.WriteString(t.text)
	}

	if style == models.ParamStyleNumeric {
		count = len(used)
	}
	if count != len(values) {
		return models.ParameterizedQuery{}, mismatch("query has %d placeholders but %d values were supplied", count, len(values))
	}

	params := make([]models.Parameter, len(values))
	for i, v := range values {
		params[i] = models.Parameter{Name: PlaceholderPrefix + strconv.Itoa(i+1), Value: v}
	}
	return models.ParameterizedQuery{CanonicalText: b.String(), Parameters: params}, nil
}

func parseIndex(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// DecodeParams splits a JSON params payload into named (object) or
// positional (array) values, normalising each value to string, int64,
// float64, bool or nil.
func DecodeParams(raw json.RawMessage) (map[string]any, []any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()

	switch trimmed[0] {
	case '{':
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.KindValidation, "params must be a JSON object or array", err)
		}
		for k, v := range obj {
			nv, err := NormalizeValue(v)
			if err != nil {
				return nil, nil, err
			}
			obj[k] = nv
		}
		return obj, nil, nil
	case '[':
		var arr []any
		if err := dec.Decode(&arr); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.KindValidation, "params must be a JSON object or array", err)
		}
		for i, v := range arr {
			nv, err := NormalizeValue(v)
			if err != nil {
				return nil, nil, err
			}
			arr[i] = nv
		}
		return nil, arr, nil
	}
	return nil, nil, apperrors.New(apperrors.KindValidation, "params must be a JSON object or array")
}

// NormalizeValue restricts a bound value to the scalar types every driver accepts.
func NormalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, "parameter values must be string, number, boolean or null", err)
		}
		return f, nil
	}
	return nil, apperrors.New(apperrors.KindValidation, "parameter values must be string, number, boolean or null")
}
