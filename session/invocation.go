package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/smnsjas/go-winrm/internal/endpoint"
	"github.com/smnsjas/go-winrm/internal/log"
	"github.com/smnsjas/go-winrm/winrm"
)

// Invocation is everything one run needs. It is built once from the
// command line and passed by value.
type Invocation struct {
	// Endpoint is the host, IP or URL as the operator typed it.
	Endpoint string
	User     string
	Password string
	Auth     winrm.AuthMethod
	TLS      endpoint.Mode
	// Insecure skips TLS certificate verification.
	Insecure bool
	// CACert is an optional PEM bundle path.
	CACert    string
	Verbosity log.Level
	// Timeout bounds each HTTP request; zero uses the transport default.
	Timeout time.Duration
	Command Command
}

// Validate reports a missing field. It does no network activity.
func (inv Invocation) Validate() error {
	var errs []error
	if inv.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if inv.User == "" {
		errs = append(errs, errors.New("user is required"))
	}
	if inv.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if inv.Command == nil {
		errs = append(errs, errors.New("a command is required"))
	}
	return errors.Join(errs...)
}

// LogValue implements slog.LogValuer and keeps the password out of logs.
func (inv Invocation) LogValue() slog.Value {
	var command string
	if inv.Command != nil {
		command = inv.Command.String()
	}
	return slog.GroupValue(
		slog.String("endpoint", inv.Endpoint),
		slog.String("user", inv.User),
		slog.String("password", "REDACTED"),
		slog.String("scheme", inv.Auth.String()),
		slog.String("tls", inv.TLS.String()),
		slog.Bool("insecure", inv.Insecure),
		slog.String("command", command),
	)
}
