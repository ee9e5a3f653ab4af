package winrm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-winrm/wsman"
	"github.com/smnsjas/go-winrm/wsman/transport"
)

func TestNew(t *testing.T) {
	c, err := New(Config{
		Endpoint: "https://host:5986/wsman",
		Username: `CORP\alice`,
		Password: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, 0},
		{time.Second, MinTimeout},
		{20 * time.Second, MinTimeout},
		{MinTimeout, MinTimeout},
		{2 * time.Minute, 2 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requestTimeout(tt.in), tt.in.String())
	}
	// The floor must outlast the server-side Receive wait.
	poll, err := time.ParseDuration(strings.ToLower(strings.TrimPrefix(wsman.ReceiveTimeout, "PT")))
	require.NoError(t, err)
	assert.Greater(t, MinTimeout, poll)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Kind
	}{
		{"bad url", Config{Endpoint: "host:5985"}, KindConnection},
		{"no host", Config{Endpoint: "http:///wsman"}, KindConnection},
		{"unsupported auth", Config{Endpoint: "http://h:5985/wsman", Auth: "digest"}, KindAuthentication},
		{"missing ca file", Config{Endpoint: "https://h:5986/wsman", CACertPath: filepath.Join(t.TempDir(), "nope.pem")}, KindConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestNew_Kerberos(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "krb5.conf")
	require.NoError(t, os.WriteFile(conf, []byte("[libdefaults]\n  default_realm = CORP.EXAMPLE\n"), 0o600))
	t.Setenv("KRB5_CONFIG", conf)

	c, err := New(Config{
		Endpoint: "http://win01.corp.example:5985/wsman",
		Username: "alice@CORP.EXAMPLE",
		Password: "secret",
		Auth:     AuthKerberos,
	})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestClient_RunCommand(t *testing.T) {
	c, host := newFakeClient()
	host.outputs["hostname"] = done("WIN01\r\n", "", 0)
	ctx := context.Background()

	shellID, err := c.OpenShell(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shell-1", shellID)
	assert.True(t, host.shellOpts.NoProfile)
	assert.Equal(t, utf8Codepage, host.shellOpts.Codepage)

	commandID, err := c.RunCommand(ctx, shellID, "hostname")
	require.NoError(t, err)

	out, err := c.CommandOutput(ctx, shellID, commandID)
	require.NoError(t, err)
	assert.Equal(t, "WIN01\r\n", out.Stdout)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, []string{commandID}, host.signals)

	// The command is released after its output is read.
	_, err = c.CommandOutput(ctx, shellID, commandID)
	assert.ErrorContains(t, err, "unknown command")

	require.NoError(t, c.CloseShell(ctx, shellID))
	assert.Equal(t, []string{shellID}, host.deleted)
}

func TestClient_CommandOutput_NonZeroExit(t *testing.T) {
	c, _ := newFakeClient()
	ctx := context.Background()
	shellID, err := c.OpenShell(ctx)
	require.NoError(t, err)

	commandID, err := c.RunCommand(ctx, shellID, "nosuchcmd")
	require.NoError(t, err)
	out, err := c.CommandOutput(ctx, shellID, commandID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ExitCode)
	assert.Contains(t, out.Stderr, "is not recognized")
}

func TestClient_UnknownShell(t *testing.T) {
	c, _ := newFakeClient()
	ctx := context.Background()

	_, err := c.RunCommand(ctx, "missing", "dir")
	assert.ErrorContains(t, err, `unknown shell "missing"`)
	assert.Equal(t, KindOther, KindOf(err))

	_, err = c.CommandOutput(ctx, "missing", "cmd")
	assert.Error(t, err)

	err = c.CloseShell(ctx, "missing")
	assert.Error(t, err)
}

func TestClient_OpenShell_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unauthorized", transport.ErrUnauthorized, KindAuthentication},
		{"unreachable", &transport.RequestError{Op: "post", Err: errors.New("dial tcp: connection refused")}, KindConnection},
		{"garbage", wsman.ErrInvalidResponse, KindInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, host := newFakeClient()
			host.createErr = tt.err
			_, err := c.OpenShell(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestClient_RunCommand_Fault(t *testing.T) {
	c, host := newFakeClient()
	ctx := context.Background()
	shellID, err := c.OpenShell(ctx)
	require.NoError(t, err)

	host.commandErr = &wsman.Fault{Code: "s:Receiver", Subcode: "w:InternalError", Reason: "boom"}
	_, err = c.RunCommand(ctx, shellID, "dir")
	assert.Equal(t, KindInvalidResponse, KindOf(err))
}

func TestClient_CloseShell_DeleteFails(t *testing.T) {
	c, host := newFakeClient()
	ctx := context.Background()
	shellID, err := c.OpenShell(ctx)
	require.NoError(t, err)

	host.deleteErr = &transport.RequestError{Op: "post", Err: errors.New("reset")}
	err = c.CloseShell(ctx, shellID)
	assert.Equal(t, KindConnection, KindOf(err))

	// Forgotten even though the delete failed.
	err = c.CloseShell(ctx, shellID)
	assert.ErrorContains(t, err, "unknown shell")
}

func TestClient_CommandOutput_Cancelled(t *testing.T) {
	c, host := newFakeClient()
	host.outputs["dir"] = done("", "", 0)
	shellID, err := c.OpenShell(context.Background())
	require.NoError(t, err)
	commandID, err := c.RunCommand(context.Background(), shellID, "dir")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CommandOutput(ctx, shellID, commandID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindOther, KindOf(err))
}
