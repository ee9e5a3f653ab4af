package winrs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/smnsjas/go-winrm/wsman"
)

// Process represents a command running in a WinRS shell.
type Process struct {
	shell     *Shell
	commandID string
	stdout    []byte
	stderr    []byte
	exitCode  int
	done      bool
	mu        sync.Mutex
}

// Run executes a command and waits for completion.
func (s *Shell) Run(ctx context.Context, command string, args ...string) (*Process, error) {
	proc, err := s.Start(ctx, command, args...)
	if err != nil {
		return nil, err
	}

	if err := proc.Wait(ctx); err != nil {
		return nil, err
	}

	return proc, nil
}

// Start executes a command without waiting for completion.
// command is a full cmd.exe command line; args, if any, are sent as
// separate rsp:Arguments elements. Use Wait to block until it finishes.
func (s *Shell) Start(ctx context.Context, command string, args ...string) (*Process, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShellClosed
	}
	s.mu.Unlock()

	if strings.TrimSpace(command) == "" {
		return nil, ErrInvalidExecutable
	}

	commandID, err := s.transport.Command(ctx, s.epr, command, args...)
	if err != nil {
		return nil, fmt.Errorf("winrs: start command: %w", err)
	}

	return &Process{
		shell:     s,
		commandID: commandID,
	}, nil
}

// Wait polls the command's output until it reports Done.
func (p *Process) Wait(ctx context.Context) error {
	return p.poll(ctx, func(result *wsman.ReceiveResult) error {
		p.mu.Lock()
		p.stdout = append(p.stdout, result.Stdout...)
		p.stderr = append(p.stderr, result.Stderr...)
		p.mu.Unlock()
		return nil
	})
}

// Stream polls the command until it reports Done, writing each batch of
// output to stdout and stderr as it arrives. Nothing is captured, so Stdout
// and Stderr stay empty. A write error stops the poll and is returned as is.
func (p *Process) Stream(ctx context.Context, stdout, stderr io.Writer) error {
	return p.poll(ctx, func(result *wsman.ReceiveResult) error {
		if len(result.Stdout) > 0 {
			if _, err := stdout.Write(result.Stdout); err != nil {
				return err
			}
		}
		if len(result.Stderr) > 0 {
			if _, err := stderr.Write(result.Stderr); err != nil {
				return err
			}
		}
		return nil
	})
}

// poll calls Receive until Done, handing each batch to handle.
func (p *Process) poll(ctx context.Context, handle func(*wsman.ReceiveResult) error) error {
	for {
		p.mu.Lock()
		done := p.done
		p.mu.Unlock()
		if done {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := p.shell.transport.Receive(ctx, p.shell.epr, p.commandID)
		if err != nil {
			return fmt.Errorf("winrs: receive output: %w", err)
		}
		if err := handle(result); err != nil {
			return err
		}

		if result.Done {
			p.mu.Lock()
			p.exitCode = result.ExitCode
			p.done = true
			p.mu.Unlock()
		}
	}
}

// Send sends data to the process's stdin. end closes the stream.
// Returns ErrProcessDone if the process has already completed.
func (p *Process) Send(ctx context.Context, data []byte, end bool) error {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return ErrProcessDone
	}
	p.mu.Unlock()

	if err := p.shell.transport.Send(ctx, p.shell.epr, p.commandID, "stdin", data, end); err != nil {
		return fmt.Errorf("winrs: send input: %w", err)
	}
	return nil
}

// Signal sends a signal to the process.
// Use wsman.SignalTerminate, wsman.SignalCtrlC, or wsman.SignalCtrlBreak.
func (p *Process) Signal(ctx context.Context, code string) error {
	if err := p.shell.transport.Signal(ctx, p.shell.epr, p.commandID, code); err != nil {
		return fmt.Errorf("winrs: signal: %w", err)
	}
	return nil
}

// Terminate releases the command on the server. A finished command still
// holds server resources until it is terminated.
func (p *Process) Terminate(ctx context.Context) error {
	return p.Signal(ctx, wsman.SignalTerminate)
}

// CommandID returns the command ID.
func (p *Process) CommandID() string {
	return p.commandID
}

// Done returns true if the process has completed.
func (p *Process) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Stdout returns the captured standard output. Safe to call after Wait() completes.
func (p *Process) Stdout() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdout
}

// Stderr returns the captured standard error. Safe to call after Wait() completes.
func (p *Process) Stderr() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr
}

// ExitCode returns the process exit code. Safe to call after Wait() completes.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}
