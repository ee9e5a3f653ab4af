package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrAuthFailed marks failures of the authentication machinery itself: a
// provider that cannot log in or produce a token, or a handshake that never
// completes. A plain 401 from the server is reported by the transport.
var ErrAuthFailed = errors.New("auth: authentication failed")

// Authenticator defines the interface for authentication handlers.
type Authenticator interface {
	// Transport wraps an http.RoundTripper with authentication.
	Transport(base http.RoundTripper) http.RoundTripper

	// Name returns the authentication scheme name.
	Name() string
}

// Credentials holds authentication credentials.
type Credentials struct {
	// Username is the user name for authentication.
	Username string

	// Password is the password for authentication.
	Password string

	// Domain is the optional domain (NTLM) or realm (Kerberos).
	Domain string
}

// Validate checks that required credential fields are populated.
func (c *Credentials) Validate() error {
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LogValue implements slog.LogValuer so passwords never reach a log.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("domain", c.Domain),
		slog.String("password", "REDACTED"),
	)
}

// SplitUser separates a domain-qualified user name.
// "DOMAIN\user" and "user@REALM" yield ("user", "DOMAIN"/"REALM"); anything
// else is returned unchanged with an empty domain.
func SplitUser(user string) (name, domain string) {
	if i := strings.Index(user, `\`); i > 0 && i < len(user)-1 {
		return user[i+1:], user[:i]
	}
	if i := strings.LastIndex(user, "@"); i > 0 && i < len(user)-1 {
		return user[:i], user[i+1:]
	}
	return user, ""
}
