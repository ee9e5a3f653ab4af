// Package endpoint turns the host, IP or URL an operator types into the
// WSMan URL a session connects to.
package endpoint

import (
	"errors"
	"strings"
)

const (
	// HTTPPort is the default WinRM listener port for plain HTTP.
	HTTPPort = "5985"
	// HTTPSPort is the default WinRM listener port for HTTPS.
	HTTPSPort = "5986"

	servicePath = "/wsman"
)

// ErrConflictingTLS is returned when both encryption flags are set.
var ErrConflictingTLS = errors.New("--encrypt and --no-encrypt cannot be used together")

// Mode is the transport encryption intent for an endpoint.
type Mode int

const (
	// ModeAuto keeps an explicit scheme and defaults to HTTP.
	ModeAuto Mode = iota
	// ModeEncrypt forces HTTPS on port 5986.
	ModeEncrypt
	// ModePlain forces HTTP on port 5985.
	ModePlain
)

func (m Mode) String() string {
	switch m {
	case ModeEncrypt:
		return "encrypt"
	case ModePlain:
		return "plain"
	default:
		return "auto"
	}
}

// ModeFromFlags folds the two encryption flags into a Mode.
func ModeFromFlags(encrypt, noEncrypt bool) (Mode, error) {
	switch {
	case encrypt && noEncrypt:
		return ModeAuto, ErrConflictingTLS
	case encrypt:
		return ModeEncrypt, nil
	case noEncrypt:
		return ModePlain, nil
	default:
		return ModeAuto, nil
	}
}

// Normalize returns the WSMan URL for raw under mode. It never fails:
// whatever raw holds is forced into scheme://authority[/path]/wsman.
//
// In ModeAuto an input that already names its scheme and ends in /wsman is
// returned as is. Otherwise the scheme follows mode, a missing port gets the
// scheme's default, and under ModeEncrypt or ModePlain the other mode's
// default port is swapped for this one's. Bare IPv6 literals (more than one
// colon, no brackets) keep their authority untouched.
func Normalize(raw string, mode Mode) string {
	s := strings.TrimSpace(raw)
	scheme, rest, hasScheme := splitScheme(s)

	if mode == ModeAuto && hasScheme && strings.HasSuffix(rest, servicePath) {
		return scheme + "://" + rest
	}

	switch mode {
	case ModeEncrypt:
		scheme = "https"
	case ModePlain:
		scheme = "http"
	default:
		if scheme == "" {
			scheme = "http"
		}
	}

	authority, path := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority, path = rest[:i], rest[i:]
	}
	path = strings.TrimSuffix(strings.TrimRight(path, "/"), servicePath)
	path = strings.TrimRight(path, "/")

	if host, port, ok := splitPort(authority); ok {
		authority = host + ":" + choosePort(port, scheme, mode)
	}

	return scheme + "://" + authority + path + servicePath
}

// splitScheme separates an http or https scheme, lower-cased. Any other
// scheme is dropped so the mode default applies.
func splitScheme(s string) (scheme, rest string, ok bool) {
	i := strings.Index(s, "://")
	if i < 0 {
		return "", s, false
	}
	switch lower := strings.ToLower(s[:i]); lower {
	case "http", "https":
		return lower, s[i+3:], true
	default:
		return "", s[i+3:], false
	}
}

// splitPort splits host and port from authority. ok is false for a bare IPv6
// literal, which cannot carry a port without brackets.
func splitPort(authority string) (host, port string, ok bool) {
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return authority, "", true
		}
		host, rest := authority[:end+1], authority[end+1:]
		return host, strings.TrimPrefix(rest, ":"), true
	}
	switch strings.Count(authority, ":") {
	case 0:
		return authority, "", true
	case 1:
		host, port, _ := strings.Cut(authority, ":")
		return host, port, true
	default:
		return "", "", false
	}
}

func choosePort(port, scheme string, mode Mode) string {
	switch mode {
	case ModeEncrypt:
		if port == "" || port == HTTPPort {
			return HTTPSPort
		}
	case ModePlain:
		if port == "" || port == HTTPSPort {
			return HTTPPort
		}
	default:
		if port == "" {
			if scheme == "https" {
				return HTTPSPort
			}
			return HTTPPort
		}
	}
	return port
}
