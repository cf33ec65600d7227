package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// InjectionFinding records a caller-supplied value that libinjection
// classifies as an SQL injection payload.
type InjectionFinding struct {
	ParamName   string
	Fingerprint string
}

func (f *InjectionFinding) Error() string {
	return fmt.Sprintf("parameter %s matched injection fingerprint %s", f.ParamName, f.Fingerprint)
}

// CheckParameterForInjection returns a finding when a string value looks
// like an injection payload. Non-string values are never flagged.
func CheckParameterForInjection(paramName string, value any) *InjectionFinding {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(str); isSQLi {
		return &InjectionFinding{ParamName: paramName, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckAllParameters returns findings in parameter order.
func CheckAllParameters(params []models.Parameter) []*InjectionFinding {
	var findings []*InjectionFinding
	for _, p := range params {
		if f := CheckParameterForInjection(p.Name, p.Value); f != nil {
			findings = append(findings, f)
		}
	}
	return findings
}

// RejectInjectedParameters fails with DestructiveOperationDenied when any
// caller-supplied value carries an injection payload. Values are bound, not
// interpolated, so this is a policy check on intent; the value itself never
// appears in the returned message.
func RejectInjectedParameters(q models.ParameterizedQuery) error {
	findings := CheckAllParameters(q.Parameters)
	if len(findings) == 0 {
		return nil
	}
	return apperrors.Wrap(apperrors.KindDestructiveOperation, "Parameter values contain disallowed SQL", findings[0])
}
