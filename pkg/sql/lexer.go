// Package sql provides SQL safety validation, literal extraction and
// placeholder handling shared by every backend dialect.
package sql

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokComment
	tokWord
	tokNumber
	tokString     // 'single quoted'
	tokQuoted     // "double quoted"
	tokBracketed  // [bracketed] identifier or array subscript
	tokOperator   // runs of = < > ! and the :: cast
	tokPunct      // any other single byte
)

type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
	// unterminated is set on quoted tokens that run to the end of input.
	unterminated bool
}

func (t token) significant() bool {
	return t.kind != tokSpace && t.kind != tokComment
}

// lex splits SQL into a lossless token stream: concatenating every token's
// text reproduces the input exactly. It understands just enough SQL to keep
// literals, comments and quoted identifiers intact.
func lex(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		start := i
		c := s[i]
		var kind tokenKind
		unterminated := false

		switch {
		case isSpace(c):
			for i < len(s) && isSpace(s[i]) {
				i++
			}
			kind = tokSpace
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			kind = tokComment
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i < len(s) && !(s[i] == '*' && i+1 < len(s) && s[i+1] == '/') {
				i++
			}
			if i < len(s) {
				i += 2
			} else {
				unterminated = true
			}
			kind = tokComment
		case c == '\'':
			i, unterminated = scanQuoted(s, i, '\'')
			kind = tokString
		case c == '"':
			i, unterminated = scanQuoted(s, i, '"')
			kind = tokQuoted
		case c == '[':
			i, unterminated = scanQuoted(s, i, ']')
			kind = tokBracketed
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			i = scanNumber(s, i)
			kind = tokNumber
			if i < len(s) && isWordChar(s[i]) {
				for i < len(s) && isWordChar(s[i]) {
					i++
				}
				kind = tokWord
			}
		case isWordStart(c):
			for i < len(s) && isWordChar(s[i]) {
				i++
			}
			kind = tokWord
		case c == ':' && i+1 < len(s) && s[i+1] == ':':
			i += 2
			kind = tokOperator
		case isOperatorChar(c):
			for i < len(s) && isOperatorChar(s[i]) {
				i++
			}
			kind = tokOperator
		default:
			i++
			kind = tokPunct
		}

		toks = append(toks, token{kind: kind, text: s[start:i], start: start, end: i, unterminated: unterminated})
	}
	return toks
}

// scanQuoted returns the index just past the closing quote. A doubled
// closing character is an escaped quote and does not terminate.
func scanQuoted(s string, i int, closing byte) (int, bool) {
	j := i + 1
	for j < len(s) {
		if s[j] == closing {
			if j+1 < len(s) && s[j+1] == closing {
				j += 2
				continue
			}
			return j + 1, false
		}
		j++
	}
	return len(s), true
}

func scanNumber(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			i = j
			for i < len(s) && isDigit(s[i]) {
				i++
			}
		}
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return c == '_' || c == '@' || c == '#' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordChar(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '$'
}

func isOperatorChar(c byte) bool {
	return c == '=' || c == '<' || c == '>' || c == '!'
}

// placeholderAt reports whether toks[i] starts a ":name" or ":1" marker and
// returns the marker body. The colon must be directly followed by the name.
func placeholderAt(toks []token, i int) (string, bool) {
	if toks[i].kind != tokPunct || toks[i].text != ":" || i+1 >= len(toks) {
		return "", false
	}
	next := toks[i+1]
	if next.start != toks[i].end || (next.kind != tokWord && next.kind != tokNumber) {
		return "", false
	}
	return next.text, true
}
