package winrm

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"

	"github.com/smnsjas/go-winrm/wsman"
)

// decodeScript reverses encodeScript.
func decodeScript(commandLine string) (string, error) {
	encoded, ok := strings.CutPrefix(commandLine, powershellPrefix)
	if !ok {
		return "", errors.New("not an encoded powershell command")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().String(string(raw))
}

var scriptPath = regexp.MustCompile(`FromBase64String\('([^']*)'\)\)`)

// fakeCommand is a running command on the fake host.
type fakeCommand struct {
	line   string
	script string
	path   string
	stdin  []byte
	closed bool
	result wsman.ReceiveResult
	// read is how much of result.Stdout has been handed out.
	read int
}

// receiveBatch is the most stdout one fake Receive returns. It does not
// divide the download line length, so lines arrive split across batches.
const receiveBatch = 700

// fakeHost implements winrs.Transport with an in-memory file system. Plain
// commands answer from outputs; encoded scripts act on files.
type fakeHost struct {
	mu       sync.Mutex
	files    map[string][]byte
	outputs  map[string]wsman.ReceiveResult
	commands map[string]*fakeCommand
	nextID   int

	shellOpts wsman.ShellOptions
	deleted   []string
	signals   []string
	sends     int
	receives  int

	createErr  error
	commandErr error
	receiveErr error
	sendErr    error
	deleteErr  error

	// corrupt flips the first byte of downloaded content.
	corrupt bool
	// wrongHash makes uploads report a bogus hash.
	wrongHash bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		files:    make(map[string][]byte),
		outputs:  make(map[string]wsman.ReceiveResult),
		commands: make(map[string]*fakeCommand),
	}
}

func newFakeClient() (*Client, *fakeHost) {
	host := newFakeHost()
	return newClient(host, slog.New(slog.NewTextHandler(io.Discard, nil))), host
}

func (h *fakeHost) Create(_ context.Context, opts wsman.ShellOptions) (*wsman.EndpointReference, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return nil, h.createErr
	}
	h.shellOpts = opts
	h.nextID++
	return &wsman.EndpointReference{
		Selectors: []wsman.Selector{{Name: "ShellId", Value: "shell-" + strconv.Itoa(h.nextID)}},
	}, nil
}

func (h *fakeHost) Command(_ context.Context, _ *wsman.EndpointReference, command string, args ...string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.commandErr != nil {
		return "", h.commandErr
	}
	line := strings.TrimSpace(strings.Join(append([]string{command}, args...), " "))
	h.nextID++
	id := "cmd-" + strconv.Itoa(h.nextID)
	cmd := &fakeCommand{line: line}

	if script, err := decodeScript(line); err == nil {
		cmd.script = script
		if m := scriptPath.FindStringSubmatch(script); m != nil {
			raw, _ := base64.StdEncoding.DecodeString(m[1])
			cmd.path = string(raw)
		}
	}
	if cmd.script == "" || !strings.Contains(cmd.script, "$input") {
		cmd.closed = true
		cmd.result = h.run(cmd)
	}
	h.commands[id] = cmd
	return id, nil
}

func (h *fakeHost) Send(_ context.Context, _ *wsman.EndpointReference, commandID, stream string, data []byte, end bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sends++
	if h.sendErr != nil {
		return h.sendErr
	}
	cmd, ok := h.commands[commandID]
	if !ok || stream != "stdin" {
		return fmt.Errorf("bad send to %s/%s", commandID, stream)
	}
	cmd.stdin = append(cmd.stdin, data...)
	if end {
		cmd.closed = true
		cmd.result = h.run(cmd)
	}
	return nil
}

func (h *fakeHost) Receive(_ context.Context, _ *wsman.EndpointReference, commandID string) (*wsman.ReceiveResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.receiveErr != nil {
		return nil, h.receiveErr
	}
	cmd, ok := h.commands[commandID]
	if !ok {
		return nil, fmt.Errorf("unknown command %s", commandID)
	}
	if !cmd.closed {
		return &wsman.ReceiveResult{CommandState: wsman.CommandStateRunning}, nil
	}
	if rest := len(cmd.result.Stdout) - cmd.read; rest > receiveBatch {
		chunk := cmd.result.Stdout[cmd.read : cmd.read+receiveBatch]
		cmd.read += receiveBatch
		h.receives++
		return &wsman.ReceiveResult{Stdout: chunk, CommandState: wsman.CommandStateRunning}, nil
	}
	result := cmd.result
	result.Stdout = cmd.result.Stdout[cmd.read:]
	cmd.read = len(cmd.result.Stdout)
	h.receives++
	return &result, nil
}

func (h *fakeHost) Signal(_ context.Context, _ *wsman.EndpointReference, commandID, code string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, commandID)
	return nil
}

func (h *fakeHost) Delete(_ context.Context, epr *wsman.EndpointReference) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, epr.ShellID())
	return h.deleteErr
}

func done(stdout, stderr string, exitCode int) wsman.ReceiveResult {
	return wsman.ReceiveResult{
		Stdout:       []byte(stdout),
		Stderr:       []byte(stderr),
		ExitCode:     exitCode,
		CommandState: wsman.CommandStateDone,
		Done:         true,
	}
}

func notFound(path string) wsman.ReceiveResult {
	return done("", `#< CLIXML
<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04"><S S="Error">Cannot find path '`+path+`' because it does not exist._x000D__x000A_</S></Objs>`, 1)
}

// run executes cmd; h.mu is held.
func (h *fakeHost) run(cmd *fakeCommand) wsman.ReceiveResult {
	switch {
	case cmd.script == "":
		if out, ok := h.outputs[cmd.line]; ok {
			return out
		}
		return done("", "'"+cmd.line+"' is not recognized as an internal or external command\r\n", 1)

	case strings.Contains(cmd.script, "File]::Create"):
		var content []byte
		for _, line := range strings.Split(string(cmd.stdin), "\r\n") {
			if line == "" {
				continue
			}
			chunk, err := base64.StdEncoding.DecodeString(line)
			if err != nil {
				return done("", "bad base64", 1)
			}
			content = append(content, chunk...)
		}
		if strings.HasPrefix(cmd.path, `Z:\`) {
			return notFound(cmd.path)
		}
		h.files[cmd.path] = content
		sum := sha256.Sum256(content)
		hash := strings.ToUpper(hex.EncodeToString(sum[:]))
		if h.wrongHash {
			hash = strings.Repeat("0", 64)
		}
		return done(hash+"\r\n", "", 0)

	case strings.Contains(cmd.script, "Get-Item"):
		content, ok := h.files[cmd.path]
		if !ok {
			return notFound(cmd.path)
		}
		sum := sha256.Sum256(content)
		return done(fmt.Sprintf("%d\r\n%s\r\n", len(content), strings.ToUpper(hex.EncodeToString(sum[:]))), "", 0)

	case strings.Contains(cmd.script, "OpenRead"):
		content, ok := h.files[cmd.path]
		if !ok {
			return notFound(cmd.path)
		}
		content = append([]byte(nil), content...)
		if h.corrupt && len(content) > 0 {
			content[0] ^= 0xff
		}
		var b strings.Builder
		for len(content) > 0 {
			n := min(len(content), 1000)
			b.WriteString(base64.StdEncoding.EncodeToString(content[:n]))
			b.WriteString("\r\n")
			content = content[n:]
		}
		return done(b.String(), "", 0)
	}
	return done("", "unexpected script", 1)
}
