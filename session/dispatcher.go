package session

import (
	"context"
	"fmt"
	"io"

	"github.com/smnsjas/go-winrm/internal/log"
)

// ExitStatusError reports a remote command that ran but exited non-zero.
type ExitStatusError struct {
	Code int
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("command failed with exit code %d", e.Code)
}

// Dispatcher maps a Command onto calls against an open shell.
type Dispatcher struct {
	remote Remote
	gate   log.Gate
	stdout io.Writer
	stderr io.Writer
}

// NewDispatcher returns a Dispatcher for remote.
func NewDispatcher(remote Remote, gate log.Gate, stdout, stderr io.Writer) *Dispatcher {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Dispatcher{remote: remote, gate: gate, stdout: stdout, stderr: stderr}
}

// Dispatch performs cmd in shellID. Errors from the remote are returned
// unchanged; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, shellID string, cmd Command) error {
	switch c := cmd.(type) {
	case RunCommand:
		return d.run(ctx, shellID, c)
	case UploadFile:
		d.gate.Infof("Uploading %s -> %s", c.Local, c.Remote)
		return d.remote.UploadFile(ctx, shellID, c.Local, c.Remote)
	case DownloadFile:
		d.gate.Infof("Downloading %s -> %s", c.Remote, c.Local)
		return d.remote.DownloadFile(ctx, shellID, c.Remote, c.Local)
	default:
		return fmt.Errorf("session: unsupported command %T", cmd)
	}
}

// run writes the command's streams verbatim, even when empty, before
// judging the exit code.
func (d *Dispatcher) run(ctx context.Context, shellID string, c RunCommand) error {
	d.gate.Infof("Executing command: %s", c.Text)

	commandID, err := d.remote.RunCommand(ctx, shellID, c.Text)
	if err != nil {
		return err
	}
	out, err := d.remote.CommandOutput(ctx, shellID, commandID)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(d.stdout, out.Stdout); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	if _, err := io.WriteString(d.stderr, out.Stderr); err != nil {
		return fmt.Errorf("write stderr: %w", err)
	}

	d.gate.Verbosef("Remote exit code %d", out.ExitCode)
	if out.ExitCode != 0 {
		return &ExitStatusError{Code: out.ExitCode}
	}
	return nil
}
