package wsman

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/smnsjas/go-winrm/wsman/transport"
)

// Transport posts a SOAP message to url and returns the response body.
// *transport.HTTPTransport satisfies it.
type Transport interface {
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}

// Client is a WSMan client for the WinRS shell resource.
type Client struct {
	endpoint  string
	transport Transport
	sessionID string
	logger    *slog.Logger
}

// NewClient creates a new WSMan client.
func NewClient(endpoint string, tr Transport) *Client {
	return &Client{
		endpoint:  endpoint,
		transport: tr,
		sessionID: newMessageID(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger used for per-request debug output.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Create creates a new cmd shell and returns its endpoint reference.
func (c *Client) Create(ctx context.Context, opts ShellOptions) (*EndpointReference, error) {
	env := newRequest(ActionCreate, c.endpoint, ResourceURICmd, c.sessionID)

	env.WithOption("WINRS_NOPROFILE", boolOption(opts.NoProfile))
	if opts.Codepage != 0 {
		env.WithOption("WINRS_CODEPAGE", strconv.Itoa(opts.Codepage))
	}

	shell := shellBody{
		WorkingDirectory: opts.WorkingDirectory,
		IdleTimeOut:      opts.IdleTimeout,
		InputStreams:     "stdin",
		OutputStreams:    "stdout stderr",
	}
	if len(opts.Environment) > 0 {
		shell.Environment = &environment{}
		for _, name := range sortedKeys(opts.Environment) {
			shell.Environment.Variables = append(shell.Environment.Variables,
				variable{Name: name, Value: opts.Environment[name]})
		}
	}

	body, err := xml.Marshal(shell)
	if err != nil {
		return nil, fmt.Errorf("marshal shell: %w", err)
	}

	respBody, err := c.sendEnvelope(ctx, env.WithBody(body))
	if err != nil {
		return nil, fmt.Errorf("create shell: %w", err)
	}

	var resp createResponse
	if err := xml.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse create response: %w", ErrInvalidResponse, err)
	}

	epr := &EndpointReference{
		Address:     resp.Body.ResourceCreated.Address,
		ResourceURI: resp.Body.ResourceCreated.ReferenceParameters.ResourceURI,
		Selectors:   resp.Body.ResourceCreated.ReferenceParameters.SelectorSet.Selectors,
	}
	if epr.ResourceURI == "" {
		epr.ResourceURI = ResourceURICmd
	}
	// Some servers only echo the shell body.
	if epr.ShellID() == "" && resp.Body.Shell.ShellID != "" {
		epr.Selectors = append(epr.Selectors, Selector{Name: "ShellId", Value: resp.Body.Shell.ShellID})
	}
	if epr.ShellID() == "" {
		return nil, fmt.Errorf("%w: create response carries no ShellId", ErrInvalidResponse)
	}

	c.logger.Debug("shell created", "shell_id", epr.ShellID())
	return epr, nil
}

// Command starts command with args in the shell and returns the command ID.
func (c *Client) Command(ctx context.Context, epr *EndpointReference, command string, args ...string) (string, error) {
	env := newRequest(ActionCommand, c.endpoint, epr.ResourceURI, c.sessionID).
		WithSelectors(epr.Selectors).
		WithOption("WINRS_CONSOLEMODE_STDIN", "TRUE").
		WithOption("WINRS_SKIP_CMD_SHELL", "FALSE")

	body, err := xml.Marshal(commandLine{Command: command, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("marshal command: %w", err)
	}

	respBody, err := c.sendEnvelope(ctx, env.WithBody(body))
	if err != nil {
		return "", fmt.Errorf("command: %w", err)
	}

	var resp commandResponse
	if err := xml.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: parse command response: %w", ErrInvalidResponse, err)
	}
	id := resp.Body.CommandResponse.CommandID
	if id == "" {
		return "", fmt.Errorf("%w: command response carries no CommandId", ErrInvalidResponse)
	}

	c.logger.Debug("command started", "shell_id", epr.ShellID(), "command_id", id)
	return id, nil
}

// Send writes data to a command's input stream. end marks the stream closed.
func (c *Client) Send(ctx context.Context, epr *EndpointReference, commandID, stream string, data []byte, end bool) error {
	env := newRequest(ActionSend, c.endpoint, epr.ResourceURI, c.sessionID).
		WithSelectors(epr.Selectors)

	sd := streamData{
		Name:      stream,
		CommandID: commandID,
		Content:   base64.StdEncoding.EncodeToString(data),
	}
	if end {
		sd.End = "true"
	}
	body, err := xml.Marshal(sendBody{Stream: sd})
	if err != nil {
		return fmt.Errorf("marshal send: %w", err)
	}

	if _, err := c.sendEnvelope(ctx, env.WithBody(body)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Receive retrieves pending stdout and stderr of a command.
// A server-side operation timeout yields an empty result so the caller can
// poll again.
func (c *Client) Receive(ctx context.Context, epr *EndpointReference, commandID string) (*ReceiveResult, error) {
	env := newRequest(ActionReceive, c.endpoint, epr.ResourceURI, c.sessionID).
		WithOperationTimeout(ReceiveTimeout).
		WithSelectors(epr.Selectors).
		WithOption("WSMAN_CMDSHELL_OPTION_KEEPALIVE", "TRUE")

	body, err := xml.Marshal(receiveBody{
		DesiredStream: desiredStream{CommandID: commandID, Streams: "stdout stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal receive: %w", err)
	}

	respBody, err := c.sendEnvelope(ctx, env.WithBody(body))
	if err != nil {
		if f, ok := AsFault(err); ok && f.IsTimeout() {
			return &ReceiveResult{CommandState: CommandStateRunning}, nil
		}
		return nil, fmt.Errorf("receive: %w", err)
	}

	var resp receiveResponse
	if err := xml.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse receive response: %w", ErrInvalidResponse, err)
	}

	result := &ReceiveResult{}
	for _, stream := range resp.Body.ReceiveResponse.Streams {
		if stream.Content == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(stream.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s stream: %w", ErrInvalidResponse, stream.Name, err)
		}
		switch stream.Name {
		case "stdout":
			result.Stdout = append(result.Stdout, decoded...)
		case "stderr":
			result.Stderr = append(result.Stderr, decoded...)
		}
	}

	state := resp.Body.ReceiveResponse.CommandState
	result.CommandState = state.State
	if state.ExitCode != nil {
		result.ExitCode = *state.ExitCode
	}
	result.Done = state.State == CommandStateDone

	return result, nil
}

// Signal sends a signal code (e.g. SignalTerminate) to a command.
func (c *Client) Signal(ctx context.Context, epr *EndpointReference, commandID, code string) error {
	env := newRequest(ActionSignal, c.endpoint, epr.ResourceURI, c.sessionID).
		WithSelectors(epr.Selectors)

	body, err := xml.Marshal(signalBody{CommandID: commandID, Code: code})
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	if _, err := c.sendEnvelope(ctx, env.WithBody(body)); err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	return nil
}

// Delete deletes a shell.
func (c *Client) Delete(ctx context.Context, epr *EndpointReference) error {
	env := newRequest(ActionDelete, c.endpoint, epr.ResourceURI, c.sessionID).
		WithSelectors(epr.Selectors)

	if _, err := c.sendEnvelope(ctx, env); err != nil {
		return fmt.Errorf("delete shell: %w", err)
	}

	c.logger.Debug("shell deleted", "shell_id", epr.ShellID())
	return nil
}

// sendEnvelope marshals and sends a SOAP envelope, returning the response body.
// Faults are returned as *Fault whether they arrive with HTTP 200 or 500.
func (c *Client) sendEnvelope(ctx context.Context, env *Envelope) ([]byte, error) {
	body, err := env.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	c.logger.Debug("wsman request", "action", env.Header.Action, "message_id", env.Header.MessageID)

	respBody, err := c.transport.Post(ctx, c.endpoint, body)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) {
			if fault, perr := ParseFault(se.Body); perr == nil && fault != nil {
				return nil, fault
			}
		}
		return nil, err
	}

	if err := CheckFault(respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

func boolOption(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
