package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/smnsjas/go-winrm/internal/endpoint"
	"github.com/smnsjas/go-winrm/internal/log"
	"github.com/smnsjas/go-winrm/winrm"
)

// CloseTimeout bounds the shell delete that ends every run. The delete runs
// on a context detached from the caller's, so an interrupted run still
// releases its shell.
const CloseTimeout = 30 * time.Second

// Remote is the part of *winrm.Client a session uses.
type Remote interface {
	OpenShell(ctx context.Context) (string, error)
	RunCommand(ctx context.Context, shellID, command string) (string, error)
	CommandOutput(ctx context.Context, shellID, commandID string) (*winrm.CommandOutput, error)
	CloseShell(ctx context.Context, shellID string) error
	UploadFile(ctx context.Context, shellID, localPath, remotePath string) error
	DownloadFile(ctx context.Context, shellID, remotePath, localPath string) error
}

var _ Remote = (*winrm.Client)(nil)

// Connector builds a Remote for a normalized configuration.
type Connector func(cfg winrm.Config) (Remote, error)

// DefaultConnector connects with winrm.New.
func DefaultConnector(cfg winrm.Config) (Remote, error) {
	c, err := winrm.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Orchestrator runs invocations.
type Orchestrator struct {
	connect Connector
	gate    log.Gate
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
}

// New returns an Orchestrator that reports progress through gate and writes
// remote command output to stdout and stderr.
func New(connect Connector, gate log.Gate, stdout, stderr io.Writer) *Orchestrator {
	if connect == nil {
		connect = DefaultConnector
	}
	return &Orchestrator{
		connect: connect,
		gate:    gate,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		stdout:  stdout,
		stderr:  stderr,
	}
}

// SetLogger sets the protocol trace logger handed to the connector.
func (o *Orchestrator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// Run performs inv. Once a shell is open it is closed exactly once, whether
// dispatch succeeds, fails, or ctx is cancelled. If the close fails its error
// is returned even when dispatch failed too; the dispatch error is then only
// reported at verbose level.
func (o *Orchestrator) Run(ctx context.Context, inv Invocation) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	url := endpoint.Normalize(inv.Endpoint, inv.TLS)
	method := inv.Auth
	if method == "" {
		method = winrm.DefaultAuthMethod
	}
	o.gate.Infof("Connecting to %s (%s)...", url, method)
	o.logger.Debug("invocation", "invocation", inv)

	remote, err := o.connect(winrm.Config{
		Endpoint:   url,
		Username:   inv.User,
		Password:   inv.Password,
		Auth:       method,
		Insecure:   inv.Insecure,
		CACertPath: inv.CACert,
		Timeout:    inv.Timeout,
		Logger:     o.logger,
	})
	if err != nil {
		return err
	}

	lc := &lifecycle{remote: remote}
	if err := lc.open(ctx); err != nil {
		return err
	}
	o.gate.Verbosef("Opened shell %s", lc.shellID)

	dispatchErr := o.dispatch(ctx, lc, inv.Command)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CloseTimeout)
	defer cancel()
	if closeErr := lc.close(closeCtx); closeErr != nil {
		if dispatchErr != nil {
			o.gate.Verbosef("Command error superseded by close failure: %v", dispatchErr)
		}
		return closeErr
	}
	o.gate.Verbosef("Closed shell %s", lc.shellID)
	return dispatchErr
}

// dispatch runs cmd and turns a panic into a close followed by the panic.
func (o *Orchestrator) dispatch(ctx context.Context, lc *lifecycle, cmd Command) error {
	defer func() {
		if r := recover(); r != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CloseTimeout)
			defer cancel()
			_ = lc.close(closeCtx)
			panic(r)
		}
	}()
	return NewDispatcher(lc.remote, o.gate, o.stdout, o.stderr).Dispatch(ctx, lc.shellID, cmd)
}

type state int

const (
	stateUnopened state = iota
	stateOpened
	stateClosed
)

var errLifecycle = errors.New("session: shell lifecycle misuse")

// lifecycle tracks one shell through unopened, opened and closed. There is
// no way back.
type lifecycle struct {
	remote  Remote
	shellID string
	state   state
}

func (l *lifecycle) open(ctx context.Context) error {
	if l.state != stateUnopened {
		return errLifecycle
	}
	id, err := l.remote.OpenShell(ctx)
	if err != nil {
		l.state = stateClosed
		return err
	}
	l.shellID = id
	l.state = stateOpened
	return nil
}

// close deletes the shell the first time it is called after a successful
// open and does nothing otherwise.
func (l *lifecycle) close(ctx context.Context) error {
	if l.state != stateOpened {
		return nil
	}
	l.state = stateClosed
	return l.remote.CloseShell(ctx, l.shellID)
}
