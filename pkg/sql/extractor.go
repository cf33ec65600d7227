package sql

import (
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// PlaceholderPrefix names extracted parameters: :p1, :p2, ...
const PlaceholderPrefix = "p"

// Clauses in which bare numbers and double-quoted values are treated as data.
var valueClauses = map[string]bool{
	"WHERE": true, "HAVING": true, "ON": true, "VALUES": true, "IN": true,
}

// Keywords that open a new clause for extraction purposes.
var clauseKeywords = map[string]string{
	"SELECT": "SELECT", "FROM": "FROM", "JOIN": "FROM", "WHERE": "WHERE",
	"HAVING": "HAVING", "ON": "ON", "VALUES": "VALUES", "GROUP": "GROUP",
	"ORDER": "ORDER", "LIMIT": "LIMIT", "OFFSET": "OFFSET", "FETCH": "FETCH",
	"TOP": "TOP", "UNION": "", "EXCEPT": "", "INTERSECT": "", "WINDOW": "WINDOW",
}

// Typed literal prefixes whose string must stay inline (INTERVAL '1 day').
var typedLiteralPrefixes = map[string]bool{
	"INTERVAL": true, "DATE": true, "TIME": true, "TIMESTAMP": true,
}

// ExtractLiterals lifts literal values out of raw SQL into bound parameters.
//
// Single-quoted strings are lifted wherever they appear, except typed
// literals such as INTERVAL '1 day'. Bare numbers and double-quoted values
// are lifted only in a value position inside WHERE, HAVING, ON, VALUES or an
// IN list: after a comparison operator, BETWEEN/AND, or as a list element.
// Numbers in LIMIT, TOP, select lists and function arguments stay inline, as
// do double-quoted identifiers.
//
// The result must not be fed back into ExtractLiterals.
func ExtractLiterals(text string) (models.ParameterizedQuery, error) {
	toks := lex(text)
	e := &extractor{toks: toks, out: make([]string, len(toks))}
	if err := e.run(); err != nil {
		return models.ParameterizedQuery{}, err
	}
	return models.ParameterizedQuery{
		CanonicalText: strings.Join(e.out, ""),
		Parameters:    e.params,
	}, nil
}

type extractor struct {
	toks   []token
	out    []string
	params []models.Parameter

	clause      string
	stack       []string
	betweenOpen bool
}

func (e *extractor) run() error {
	for i, t := range e.toks {
		e.out[i] = t.text
		if t.unterminated {
			return apperrors.New(apperrors.KindValidation, "Query contains an unterminated quote or comment")
		}

		switch t.kind {
		case tokWord:
			e.observeWord(strings.ToUpper(t.text))
		case tokPunct:
			e.observePunct(i, t.text)
		case tokString:
			e.closeBetween(i)
			if e.isTypedLiteral(i) {
				continue
			}
			if p := e.prevSig(i); p >= 0 && isNPrefix(e.toks[p]) && e.toks[p].end == t.start {
				e.out[p] = ""
			}
			e.lift(i, unquote(t.text, '\''))
		case tokQuoted:
			if e.inValuePosition(i) {
				e.lift(i, unquote(t.text, '"'))
			}
		case tokNumber:
			e.liftNumber(i)
		}
	}
	return nil
}

func (e *extractor) observeWord(upper string) {
	if clause, ok := clauseKeywords[upper]; ok {
		e.clause = clause
		e.betweenOpen = false
		return
	}
	if upper == "BETWEEN" {
		e.betweenOpen = true
	}
}

func (e *extractor) observePunct(i int, text string) {
	switch text {
	case "(":
		e.stack = append(e.stack, e.clause)
		if p := e.prevSig(i); p >= 0 && e.toks[p].kind == tokWord && strings.EqualFold(e.toks[p].text, "IN") {
			e.clause = "IN"
		}
	case ")":
		if n := len(e.stack); n > 0 {
			e.clause = e.stack[n-1]
			e.stack = e.stack[:n-1]
		}
	}
}

func (e *extractor) liftNumber(i int) {
	if !valueClauses[e.clause] {
		return
	}

	// A sign directly attached to the number joins the literal when the sign
	// itself sits in a value position: "x > -5" becomes "x > :p1" with -5.
	p := e.prevSig(i)
	if p >= 0 && e.toks[p].kind == tokPunct && (e.toks[p].text == "-" || e.toks[p].text == "+") && e.toks[p].end == e.toks[i].start {
		if e.inValuePosition(p) {
			e.out[p] = ""
			e.lift(i, parseNumber(e.toks[p].text+e.toks[i].text))
			return
		}
	}

	if e.inValuePosition(i) || e.nextIsComparison(i) {
		e.lift(i, parseNumber(e.toks[i].text))
	}
}

// inValuePosition reports whether the token at i follows a comparison,
// BETWEEN/AND, or is an element of an IN or VALUES list.
func (e *extractor) inValuePosition(i int) bool {
	if !valueClauses[e.clause] {
		return false
	}
	p := e.prevSig(i)
	if p < 0 {
		return false
	}
	prev := e.toks[p]
	switch prev.kind {
	case tokOperator:
		return prev.text != "::"
	case tokWord:
		switch strings.ToUpper(prev.text) {
		case "BETWEEN", "LIKE", "ILIKE":
			return true
		case "AND":
			return e.closeBetween(i)
		}
	case tokPunct:
		if (prev.text == "(" || prev.text == ",") && (e.clause == "IN" || e.clause == "VALUES") {
			return true
		}
	}
	return false
}

func (e *extractor) nextIsComparison(i int) bool {
	for j := i + 1; j < len(e.toks); j++ {
		if e.toks[j].significant() {
			return e.toks[j].kind == tokOperator && e.toks[j].text != "::"
		}
	}
	return false
}

func (e *extractor) isTypedLiteral(i int) bool {
	p := e.prevSig(i)
	if p < 0 || e.toks[p].kind != tokWord {
		return false
	}
	upper := strings.ToUpper(e.toks[p].text)
	if upper == "E" || upper == "B" || upper == "X" {
		return e.toks[p].end == e.toks[i].start
	}
	return typedLiteralPrefixes[upper]
}

func (e *extractor) lift(i int, value any) {
	name := PlaceholderPrefix + strconv.Itoa(len(e.params)+1)
	e.params = append(e.params, models.Parameter{Name: name, Value: value})
	e.out[i] = ":" + name
}

func (e *extractor) prevSig(i int) int {
	for j := i - 1; j >= 0; j-- {
		if e.toks[j].significant() {
			return j
		}
	}
	return -1
}

// closeBetween consumes an open BETWEEN when the token at i is its upper
// bound, so later ANDs are treated as plain conjunctions.
func (e *extractor) closeBetween(i int) bool {
	if !e.betweenOpen || !e.prevIsWord(i, "AND") {
		return false
	}
	e.betweenOpen = false
	return true
}

func (e *extractor) prevIsWord(i int, word string) bool {
	p := e.prevSig(i)
	return p >= 0 && e.toks[p].kind == tokWord && strings.EqualFold(e.toks[p].text, word)
}

func isNPrefix(t token) bool {
	return t.kind == tokWord && (t.text == "N" || t.text == "n")
}

// unquote strips the surrounding quotes and collapses doubled quotes.
func unquote(text string, quote byte) string {
	if len(text) < 2 {
		return text
	}
	inner := text[1 : len(text)-1]
	q := string(quote)
	return strings.ReplaceAll(inner, q+q, q)
}

// parseNumber keeps integers exact and falls back to float64, then to the
// original text for values neither type can hold.
func parseNumber(text string) any {
	if !strings.ContainsAny(text, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}
