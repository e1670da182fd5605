package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// SuspiciousValue describes a filter value that libinjection flags.
type SuspiciousValue struct {
	Name        string
	Value       string
	Fingerprint string
}

func (s SuspiciousValue) Error() string {
	return fmt.Sprintf("value for %s looks like SQL injection (fingerprint %s)", s.Name, s.Fingerprint)
}

// CheckFilterValue runs libinjection over a user-supplied filter value such as
// a product name. Values are always bound as parameters; this check rejects
// obvious attacks early and gives them a log line. Non-string values pass.
func CheckFilterValue(name string, value any) *SuspiciousValue {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &SuspiciousValue{Name: name, Value: s, Fingerprint: string(fingerprint)}
	}
	return nil
}
