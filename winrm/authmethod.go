package winrm

import (
	"fmt"
	"strings"
)

// AuthMethod selects the HTTP authentication scheme.
type AuthMethod string

const (
	AuthNTLM     AuthMethod = "ntlm"
	AuthBasic    AuthMethod = "basic"
	AuthKerberos AuthMethod = "kerberos"
)

// DefaultAuthMethod is used when none is configured.
const DefaultAuthMethod = AuthNTLM

// ParseAuthMethod accepts "ntlm", "basic" or "kerberos", case-insensitively.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch m := AuthMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case AuthNTLM, AuthBasic, AuthKerberos:
		return m, nil
	default:
		return "", fmt.Errorf("invalid auth method %q (want ntlm, basic or kerberos)", s)
	}
}

func (m AuthMethod) String() string {
	return string(m)
}
