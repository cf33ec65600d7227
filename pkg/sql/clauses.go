package sql

import "strings"

// ClauseInfo describes the outermost statement of a query, ignoring
// anything nested in parentheses, literals or comments.
type ClauseInfo struct {
	// OrderByAt is the byte offset of the top-level ORDER keyword, or -1.
	OrderByAt int
	HasTop    bool
	HasLimit  bool
	HasOffset bool
	// HasDistinct and HasSetOp restrict what an appended ORDER BY may reference.
	HasDistinct bool
	HasSetOp    bool
	// MainSelectAt is the byte offset of the first top-level SELECT, or -1.
	// Anything before it is a WITH prefix (or leading comments).
	MainSelectAt int
}

// InspectClauses scans the top level of a query for the clauses that
// decide how it may be wrapped for paging or counting.
func InspectClauses(text string) ClauseInfo {
	info := ClauseInfo{OrderByAt: -1, MainSelectAt: -1}
	toks := lex(text)
	depth := 0

	for i, t := range toks {
		switch t.kind {
		case tokPunct:
			switch t.text {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			}
		case tokWord:
			if depth != 0 {
				continue
			}
			switch strings.ToUpper(t.text) {
			case "ORDER":
				if info.OrderByAt < 0 && nextWordIs(toks, i, "BY") {
					info.OrderByAt = t.start
				}
			case "TOP":
				info.HasTop = true
			case "LIMIT":
				info.HasLimit = true
			case "OFFSET":
				info.HasOffset = true
			case "DISTINCT":
				info.HasDistinct = true
			case "UNION", "INTERSECT", "EXCEPT":
				info.HasSetOp = true
			case "SELECT":
				if info.MainSelectAt < 0 {
					info.MainSelectAt = t.start
				}
			}
		}
	}
	return info
}

// StripOrderBy removes a trailing top-level ORDER BY when nothing after it
// depends on the ordering. Used for count probes, where ordering is wasted
// work and some engines reject ORDER BY inside a derived table.
func StripOrderBy(text string) string {
	info := InspectClauses(text)
	if info.OrderByAt < 0 || info.HasTop || info.HasLimit || info.HasOffset {
		return text
	}
	return strings.TrimRight(text[:info.OrderByAt], " \t\r\n")
}

// SplitCTE separates a leading WITH clause from the statement it feeds, so
// the statement can be wrapped while the common table expressions stay in
// front. prefix is empty for queries without a WITH clause.
func SplitCTE(text string) (prefix, body string) {
	info := InspectClauses(text)
	if info.MainSelectAt <= 0 || !startsWithWord(text, "WITH") {
		return "", text
	}
	return text[:info.MainSelectAt], text[info.MainSelectAt:]
}

// EndsInLineComment reports whether text finishes inside a "--" comment,
// in which case anything appended on the same line would be commented out.
func EndsInLineComment(text string) bool {
	toks := lex(text)
	return len(toks) > 0 && toks[len(toks)-1].kind == tokComment && strings.HasPrefix(toks[len(toks)-1].text, "--")
}

func startsWithWord(text, word string) bool {
	for _, t := range lex(text) {
		if t.significant() {
			return t.kind == tokWord && strings.EqualFold(t.text, word)
		}
	}
	return false
}

func nextWordIs(toks []token, i int, word string) bool {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].significant() {
			return toks[j].kind == tokWord && strings.EqualFold(toks[j].text, word)
		}
	}
	return false
}
