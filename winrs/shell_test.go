package winrs

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smnsjas/go-winrm/wsman"
)

// mockTransport implements Transport for testing.
type mockTransport struct {
	createFn  func(ctx context.Context, opts wsman.ShellOptions) (*wsman.EndpointReference, error)
	commandFn func(ctx context.Context, epr *wsman.EndpointReference, command string, args ...string) (string, error)
	sendFn    func(ctx context.Context, epr *wsman.EndpointReference, cmdID, stream string, data []byte, end bool) error
	receiveFn func(ctx context.Context, epr *wsman.EndpointReference, cmdID string) (*wsman.ReceiveResult, error)
	signalFn  func(ctx context.Context, epr *wsman.EndpointReference, cmdID, code string) error
	deleteFn  func(ctx context.Context, epr *wsman.EndpointReference) error
}

func (m *mockTransport) Create(ctx context.Context, opts wsman.ShellOptions) (*wsman.EndpointReference, error) {
	if m.createFn != nil {
		return m.createFn(ctx, opts)
	}
	return &wsman.EndpointReference{
		Selectors: []wsman.Selector{{Name: "ShellId", Value: "test-shell-id"}},
	}, nil
}

func (m *mockTransport) Command(ctx context.Context, epr *wsman.EndpointReference, command string, args ...string) (string, error) {
	if m.commandFn != nil {
		return m.commandFn(ctx, epr, command, args...)
	}
	return "test-command-id", nil
}

func (m *mockTransport) Send(ctx context.Context, epr *wsman.EndpointReference, cmdID, stream string, data []byte, end bool) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, epr, cmdID, stream, data, end)
	}
	return nil
}

func (m *mockTransport) Receive(ctx context.Context, epr *wsman.EndpointReference, cmdID string) (*wsman.ReceiveResult, error) {
	if m.receiveFn != nil {
		return m.receiveFn(ctx, epr, cmdID)
	}
	return &wsman.ReceiveResult{
		Stdout:   []byte("test output\n"),
		Stderr:   []byte{},
		ExitCode: 0,
		Done:     true,
	}, nil
}

func (m *mockTransport) Signal(ctx context.Context, epr *wsman.EndpointReference, cmdID, code string) error {
	if m.signalFn != nil {
		return m.signalFn(ctx, epr, cmdID, code)
	}
	return nil
}

func (m *mockTransport) Delete(ctx context.Context, epr *wsman.EndpointReference) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, epr)
	}
	return nil
}

func TestNewShell(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "default options",
			opts:    nil,
			wantErr: false,
		},
		{
			name:    "with working directory",
			opts:    []Option{WithWorkingDirectory("C:\\temp")},
			wantErr: false,
		},
		{
			name:    "with codepage",
			opts:    []Option{WithCodepage(65001)},
			wantErr: false,
		},
		{
			name:    "with no profile",
			opts:    []Option{WithNoProfile()},
			wantErr: false,
		},
		{
			name:    "with environment",
			opts:    []Option{WithEnvironment(map[string]string{"VAR": "value"})},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockTransport{}
			shell, err := NewShell(context.Background(), mock, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewShell() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil {
				if shell.ID() != "test-shell-id" {
					t.Errorf("shell.ID() = %q, want %q", shell.ID(), "test-shell-id")
				}
				if err := shell.Close(context.Background()); err != nil {
					t.Errorf("shell.Close() error = %v", err)
				}
			}
		})
	}
}

func TestNewShell_NilTransport(t *testing.T) {
	_, err := NewShell(context.Background(), nil)
	if err == nil {
		t.Error("NewShell(nil) expected error, got nil")
	}
}

func TestShell_Run(t *testing.T) {
	mock := &mockTransport{}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}
	defer func() {
		if closeErr := shell.Close(context.Background()); closeErr != nil {
			t.Errorf("Close error: %v", closeErr)
		}
	}()

	proc, err := shell.Run(context.Background(), "dir /b")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if string(proc.Stdout()) != "test output\n" {
		t.Errorf("Stdout = %q, want %q", proc.Stdout(), "test output\n")
	}
	if proc.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", proc.ExitCode())
	}
}

func TestShell_Run_EmptyExecutable(t *testing.T) {
	mock := &mockTransport{}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}
	defer func() {
		if closeErr := shell.Close(context.Background()); closeErr != nil {
			t.Errorf("Close error: %v", closeErr)
		}
	}()

	_, err = shell.Run(context.Background(), "")
	if err != ErrInvalidExecutable {
		t.Errorf("Run(\"\") error = %v, want %v", err, ErrInvalidExecutable)
	}
}

func TestShell_ClosedShell(t *testing.T) {
	mock := &mockTransport{}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}

	// Close the shell
	if err := shell.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Try to run command on closed shell
	_, err = shell.Run(context.Background(), "dir")
	if err != ErrShellClosed {
		t.Errorf("Run on closed shell error = %v, want %v", err, ErrShellClosed)
	}

	// Close again should be no-op
	if err := shell.Close(context.Background()); err != nil {
		t.Errorf("Double Close() error = %v", err)
	}
}

func TestProcess_Signal(t *testing.T) {
	signalCalled := false
	mock := &mockTransport{
		signalFn: func(_ context.Context, _ *wsman.EndpointReference, _, code string) error {
			signalCalled = true
			if code != wsman.SignalCtrlC {
				t.Errorf("Signal code = %q, want %q", code, wsman.SignalCtrlC)
			}
			return nil
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}
	defer func() {
		if closeErr := shell.Close(context.Background()); closeErr != nil {
			t.Errorf("Close error: %v", closeErr)
		}
	}()

	proc, err := shell.Start(context.Background(), "ping", "-t", "localhost")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := proc.Signal(context.Background(), wsman.SignalCtrlC); err != nil {
		t.Errorf("Signal() error = %v", err)
	}

	if !signalCalled {
		t.Error("Signal() did not call transport.Signal")
	}
}

func TestNewShell_PassesOptions(t *testing.T) {
	var got wsman.ShellOptions
	mock := &mockTransport{
		createFn: func(_ context.Context, opts wsman.ShellOptions) (*wsman.EndpointReference, error) {
			got = opts
			return &wsman.EndpointReference{
				Selectors: []wsman.Selector{{Name: "ShellId", Value: "S1"}},
			}, nil
		},
	}

	_, err := NewShell(context.Background(), mock,
		WithWorkingDirectory(`C:\temp`),
		WithCodepage(65001),
		WithNoProfile(),
		WithIdleTimeout(90*time.Second),
	)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}

	want := wsman.ShellOptions{
		WorkingDirectory: `C:\temp`,
		Codepage:         65001,
		NoProfile:        true,
		IdleTimeout:      "PT90S",
	}
	if got.WorkingDirectory != want.WorkingDirectory || got.Codepage != want.Codepage ||
		got.NoProfile != want.NoProfile || got.IdleTimeout != want.IdleTimeout {
		t.Errorf("Create options = %+v, want %+v", got, want)
	}
}

func TestNewShell_CreateError(t *testing.T) {
	createErr := errors.New("boom")
	mock := &mockTransport{
		createFn: func(context.Context, wsman.ShellOptions) (*wsman.EndpointReference, error) {
			return nil, createErr
		},
	}

	_, err := NewShell(context.Background(), mock)
	if !errors.Is(err, createErr) {
		t.Errorf("NewShell() error = %v, want wrapped %v", err, createErr)
	}
}

// TestProcess_Wait_Polls verifies output accumulates across Receive calls
// and the exit code is taken from the final one.
func TestProcess_Wait_Polls(t *testing.T) {
	calls := 0
	mock := &mockTransport{
		commandFn: func(_ context.Context, _ *wsman.EndpointReference, command string, args ...string) (string, error) {
			if command != `type "C:\a b.txt"` || len(args) != 0 {
				t.Errorf("Command(%q, %v)", command, args)
			}
			return "c1", nil
		},
		receiveFn: func(_ context.Context, _ *wsman.EndpointReference, cmdID string) (*wsman.ReceiveResult, error) {
			calls++
			if cmdID != "c1" {
				t.Errorf("Receive command ID = %q", cmdID)
			}
			switch calls {
			case 1:
				return &wsman.ReceiveResult{Stdout: []byte("one "), Stderr: []byte("e1")}, nil
			case 2:
				return &wsman.ReceiveResult{}, nil
			default:
				return &wsman.ReceiveResult{Stdout: []byte("two"), ExitCode: 7, Done: true}, nil
			}
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}

	proc, err := shell.Run(context.Background(), `type "C:\a b.txt"`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("Receive called %d times, want 3", calls)
	}
	if string(proc.Stdout()) != "one two" || string(proc.Stderr()) != "e1" {
		t.Errorf("output = %q / %q", proc.Stdout(), proc.Stderr())
	}
	if proc.ExitCode() != 7 || !proc.Done() {
		t.Errorf("ExitCode=%d Done=%v", proc.ExitCode(), proc.Done())
	}
	if proc.CommandID() != "c1" {
		t.Errorf("CommandID() = %q", proc.CommandID())
	}
}

func TestProcess_Wait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockTransport{
		receiveFn: func(context.Context, *wsman.EndpointReference, string) (*wsman.ReceiveResult, error) {
			cancel()
			return &wsman.ReceiveResult{}, nil
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}

	_, err = shell.Run(ctx, "ping -t localhost")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestProcess_Stream(t *testing.T) {
	batches := []*wsman.ReceiveResult{
		{Stdout: []byte("ab")},
		{Stderr: []byte("warn")},
		{Stdout: []byte("cd"), ExitCode: 3, Done: true},
	}
	mock := &mockTransport{
		receiveFn: func(context.Context, *wsman.EndpointReference, string) (*wsman.ReceiveResult, error) {
			next := batches[0]
			batches = batches[1:]
			return next, nil
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}
	proc, err := shell.Start(context.Background(), "type big.log")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := proc.Stream(context.Background(), &stdout, &stderr); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if stdout.String() != "abcd" || stderr.String() != "warn" {
		t.Errorf("streamed %q / %q", stdout.String(), stderr.String())
	}
	if len(proc.Stdout()) != 0 {
		t.Errorf("Stdout() = %q, want nothing captured", proc.Stdout())
	}
	if proc.ExitCode() != 3 || !proc.Done() {
		t.Errorf("ExitCode=%d Done=%v", proc.ExitCode(), proc.Done())
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestProcess_Stream_WriteError(t *testing.T) {
	calls := 0
	mock := &mockTransport{
		receiveFn: func(context.Context, *wsman.EndpointReference, string) (*wsman.ReceiveResult, error) {
			calls++
			return &wsman.ReceiveResult{Stdout: []byte("data")}, nil
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}
	proc, err := shell.Start(context.Background(), "type big.log")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	errDisk := errors.New("disk full")
	err = proc.Stream(context.Background(), failingWriter{errDisk}, &bytes.Buffer{})
	if !errors.Is(err, errDisk) {
		t.Errorf("Stream() error = %v, want %v", err, errDisk)
	}
	if calls != 1 || proc.Done() {
		t.Errorf("calls=%d Done=%v, want 1 call and not done", calls, proc.Done())
	}
}

func TestProcess_SendAfterDone(t *testing.T) {
	var sent []byte
	var sentEnd bool
	mock := &mockTransport{
		sendFn: func(_ context.Context, _ *wsman.EndpointReference, _, stream string, data []byte, end bool) error {
			if stream != "stdin" {
				t.Errorf("stream = %q", stream)
			}
			sent, sentEnd = data, end
			return nil
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}

	proc, err := shell.Start(context.Background(), "more")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := proc.Send(context.Background(), []byte("input"), true); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(sent) != "input" || !sentEnd {
		t.Errorf("sent %q end=%v", sent, sentEnd)
	}

	if err := proc.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := proc.Send(context.Background(), []byte("late"), false); !errors.Is(err, ErrProcessDone) {
		t.Errorf("Send() after done error = %v, want ErrProcessDone", err)
	}
}

func TestProcess_Terminate(t *testing.T) {
	var code string
	mock := &mockTransport{
		signalFn: func(_ context.Context, _ *wsman.EndpointReference, _, c string) error {
			code = c
			return nil
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}
	proc, err := shell.Run(context.Background(), "hostname")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := proc.Terminate(context.Background()); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if code != wsman.SignalTerminate {
		t.Errorf("signal = %q, want terminate", code)
	}
}

func TestShell_Close_Once(t *testing.T) {
	deletes := 0
	mock := &mockTransport{
		deleteFn: func(context.Context, *wsman.EndpointReference) error {
			deletes++
			return errors.New("gone")
		},
	}
	shell, err := NewShell(context.Background(), mock)
	if err != nil {
		t.Fatalf("NewShell() error = %v", err)
	}

	if err := shell.Close(context.Background()); err == nil {
		t.Error("first Close() should report the delete failure")
	}
	if err := shell.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if deletes != 1 || !shell.Closed() {
		t.Errorf("deletes=%d closed=%v, want 1 true", deletes, shell.Closed())
	}
}
