// Package winrm is a small WinRM client for one-shot remote work: open a
// WinRS shell, run a command or move a file through it, and close it.
// Every failure is an *Error carrying a Kind.
package winrm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/smnsjas/go-winrm/winrs"
	"github.com/smnsjas/go-winrm/wsman"
	"github.com/smnsjas/go-winrm/wsman/auth"
	"github.com/smnsjas/go-winrm/wsman/transport"
)

// utf8Codepage makes the remote console emit UTF-8.
const utf8Codepage = 65001

// Config configures a Client.
type Config struct {
	// Endpoint is the full WSMan URL, e.g. https://host:5986/wsman.
	Endpoint string
	Username string
	Password string
	// Auth defaults to DefaultAuthMethod.
	Auth AuthMethod
	// Insecure skips TLS certificate verification.
	Insecure bool
	// CACertPath is a PEM bundle trusted instead of the system roots.
	CACertPath string
	// Timeout bounds each HTTP request. Zero uses the transport default;
	// smaller nonzero values are raised to MinTimeout.
	Timeout time.Duration
	// Logger receives request-level debug records. Nil discards them.
	Logger *slog.Logger
}

// MinTimeout is the shortest request timeout New accepts. The server holds
// each Receive for up to 20 seconds (wsman.ReceiveTimeout) before replying.
const MinTimeout = 25 * time.Second

// requestTimeout raises a nonzero d to MinTimeout.
func requestTimeout(d time.Duration) time.Duration {
	if d > 0 && d < MinTimeout {
		return MinTimeout
	}
	return d
}

// CommandOutput is the result of a finished command.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client drives WinRS shells on one endpoint.
type Client struct {
	rs     winrs.Transport
	logger *slog.Logger

	mu     sync.Mutex
	shells map[string]*winrs.Shell
	procs  map[string]*winrs.Process
}

// New builds a client for cfg. Nothing is sent until OpenShell.
func New(cfg Config) (*Client, error) {
	const op = "connect"

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{Kind: KindConnection, Op: op, Err: fmt.Errorf("invalid endpoint %q", cfg.Endpoint)}
	}

	method := cfg.Auth
	if method == "" {
		method = DefaultAuthMethod
	}
	authenticator, err := newAuthenticator(method, cfg)
	if err != nil {
		return nil, &Error{Kind: KindAuthentication, Op: op, Err: err}
	}

	tr := transport.NewHTTPTransport(
		transport.WithTimeout(requestTimeout(cfg.Timeout)),
		transport.WithInsecureSkipVerify(cfg.Insecure),
		transport.WithCACertFile(cfg.CACertPath),
		transport.WithAuthenticator(authenticator),
	)
	if err := tr.Err(); err != nil {
		return nil, &Error{Kind: KindConnection, Op: op, Err: err}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger.Debug("client configured",
		"endpoint", cfg.Endpoint,
		"scheme", authenticator.Name(),
		"insecure", cfg.Insecure,
		"ca_bundle", cfg.CACertPath != "",
	)
	if u.Scheme == "http" && method == AuthBasic {
		logger.Warn("basic authentication over plain HTTP sends the password unencrypted")
	}

	ws := wsman.NewClient(cfg.Endpoint, tr)
	ws.SetLogger(logger)

	return newClient(ws, logger), nil
}

func newClient(rs winrs.Transport, logger *slog.Logger) *Client {
	return &Client{
		rs:     rs,
		logger: logger,
		shells: make(map[string]*winrs.Shell),
		procs:  make(map[string]*winrs.Process),
	}
}

func newAuthenticator(method AuthMethod, cfg Config) (auth.Authenticator, error) {
	switch method {
	case AuthBasic:
		return auth.NewBasicAuth(auth.Credentials{Username: cfg.Username, Password: cfg.Password}), nil
	case AuthNTLM:
		user, domain := auth.SplitUser(cfg.Username)
		return auth.NewNTLMAuth(auth.Credentials{Username: user, Password: cfg.Password, Domain: domain}), nil
	case AuthKerberos:
		user, realm := auth.SplitUser(cfg.Username)
		spn, err := auth.TargetSPN(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		provider, err := auth.NewKerberosProvider(auth.KerberosProviderConfig{
			TargetSPN:   spn,
			Credentials: &auth.Credentials{Username: user, Password: cfg.Password, Domain: realm},
		})
		if err != nil {
			return nil, err
		}
		return auth.NewNegotiateAuth(provider), nil
	default:
		return nil, fmt.Errorf("unsupported auth method %q", method)
	}
}

// OpenShell creates a cmd shell and returns its ID.
func (c *Client) OpenShell(ctx context.Context) (string, error) {
	shell, err := winrs.NewShell(ctx, c.rs,
		winrs.WithNoProfile(),
		winrs.WithCodepage(utf8Codepage),
	)
	if err != nil {
		return "", classify("open shell", err, KindOther)
	}

	c.mu.Lock()
	c.shells[shell.ID()] = shell
	c.mu.Unlock()

	c.logger.Debug("shell opened", "shell_id", shell.ID())
	return shell.ID(), nil
}

// RunCommand starts command in the shell and returns the command ID.
func (c *Client) RunCommand(ctx context.Context, shellID, command string) (string, error) {
	const op = "run command"

	shell, err := c.shell(shellID)
	if err != nil {
		return "", &Error{Kind: KindOther, Op: op, Err: err}
	}

	proc, err := shell.Start(ctx, command)
	if err != nil {
		return "", classify(op, err, KindOther)
	}

	c.mu.Lock()
	c.procs[proc.CommandID()] = proc
	c.mu.Unlock()

	return proc.CommandID(), nil
}

// CommandOutput waits for the command to finish and returns its output.
// The command is released on the server afterwards.
func (c *Client) CommandOutput(ctx context.Context, shellID, commandID string) (*CommandOutput, error) {
	const op = "command output"

	if _, err := c.shell(shellID); err != nil {
		return nil, &Error{Kind: KindOther, Op: op, Err: err}
	}

	c.mu.Lock()
	proc, ok := c.procs[commandID]
	delete(c.procs, commandID)
	c.mu.Unlock()
	if !ok {
		return nil, &Error{Kind: KindOther, Op: op, Err: fmt.Errorf("unknown command %q", commandID)}
	}

	out, err := c.collect(ctx, proc)
	if err != nil {
		return nil, classify(op, err, KindOther)
	}
	return out, nil
}

// CloseShell deletes the shell. The shell is forgotten even if the delete fails.
func (c *Client) CloseShell(ctx context.Context, shellID string) error {
	const op = "close shell"

	c.mu.Lock()
	shell, ok := c.shells[shellID]
	delete(c.shells, shellID)
	c.mu.Unlock()
	if !ok {
		return &Error{Kind: KindOther, Op: op, Err: fmt.Errorf("unknown shell %q", shellID)}
	}

	if err := shell.Close(ctx); err != nil {
		return classify(op, err, KindOther)
	}
	c.logger.Debug("shell closed", "shell_id", shellID)
	return nil
}

func (c *Client) shell(id string) (*winrs.Shell, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	shell, ok := c.shells[id]
	if !ok {
		return nil, fmt.Errorf("unknown shell %q", id)
	}
	return shell, nil
}

// collect waits for proc and terminates it. A failed terminate is only logged:
// the output is complete and the shell delete reclaims the command anyway.
func (c *Client) collect(ctx context.Context, proc *winrs.Process) (*CommandOutput, error) {
	if err := proc.Wait(ctx); err != nil {
		return nil, err
	}
	if err := proc.Terminate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("terminate command failed", "command_id", proc.CommandID(), "error", err)
	}
	return &CommandOutput{
		Stdout:   string(proc.Stdout()),
		Stderr:   string(proc.Stderr()),
		ExitCode: proc.ExitCode(),
	}, nil
}
