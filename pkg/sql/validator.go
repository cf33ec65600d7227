package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
)

// DeniedKeywords are the destructive and DDL verbs rejected anywhere in a query.
var DeniedKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
}

// \b treats '_' as a word character, so update_time or created_at pass.
var deniedPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(DeniedKeywords, "|") + `)\b`)

// DeniedKeywordError carries the matched keyword for server-side logging.
// It is always wrapped in a DestructiveOperationDenied error whose public
// message omits the keyword.
type DeniedKeywordError struct {
	Keyword  string
	Position int
}

func (e *DeniedKeywordError) Error() string {
	return fmt.Sprintf("denied keyword %s at offset %d", e.Keyword, e.Position)
}

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize runs the safety checks every query must pass before
// it may touch a connection:
//  1. reject empty input
//  2. reject any denylisted keyword, anywhere in the text
//  3. strip one trailing semicolon, then reject any remaining statement separator
//  4. reject unterminated quotes and comments
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: apperrors.ErrEmptyQuery}
	}

	if loc := deniedPattern.FindStringSubmatchIndex(sqlQuery); loc != nil {
		denied := &DeniedKeywordError{
			Keyword:  strings.ToUpper(sqlQuery[loc[2]:loc[3]]),
			Position: loc[2],
		}
		return ValidationResult{Error: apperrors.WithCause(apperrors.ErrDestructive, denied)}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	toks := lex(normalized)

	for _, t := range toks {
		if t.unterminated {
			return ValidationResult{Error: apperrors.New(apperrors.KindValidation, "Query contains an unterminated quote or comment")}
		}
		if t.kind == tokPunct && t.text == ";" {
			return ValidationResult{Error: apperrors.ErrMultipleStatements}
		}
	}

	if !hasStatementBody(toks) {
		return ValidationResult{Error: apperrors.ErrEmptyQuery}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// Validate is the error-only form of ValidateAndNormalize.
func Validate(sqlQuery string) (string, error) {
	res := ValidateAndNormalize(sqlQuery)
	return res.NormalizedSQL, res.Error
}

func hasStatementBody(toks []token) bool {
	for _, t := range toks {
		if t.significant() {
			return true
		}
	}
	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
