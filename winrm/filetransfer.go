package winrm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/smnsjas/go-winrm/winrs"
)

// uploadChunkSize is the raw size of each chunk sent on stdin. A chunk is
// base64-encoded twice (once as a line for the script, once by Send) and
// must fit the envelope limit with room to spare.
const uploadChunkSize = 48 * 1024

// downloadChunkSize is the raw size of each base64 line the download script
// writes to stdout.
const downloadChunkSize = 192 * 1024

// uploadScript creates the file, appends every base64 line read from stdin
// and prints the SHA-256 of the result.
func uploadScript(remotePath string) string {
	return fmt.Sprintf(`$ErrorActionPreference = 'Stop'
$path = %s
$stream = [System.IO.File]::Create($path)
try {
	foreach ($line in $input) {
		if ($line.Length -eq 0) { continue }
		$bytes = [System.Convert]::FromBase64String($line)
		$stream.Write($bytes, 0, $bytes.Length)
	}
} finally {
	$stream.Close()
}
(Get-FileHash -Algorithm SHA256 -LiteralPath $path).Hash
`, psLiteralPath(remotePath))
}

// statScript prints the size and SHA-256 of a remote file on two lines.
func statScript(remotePath string) string {
	return fmt.Sprintf(`$ErrorActionPreference = 'Stop'
$path = %s
$file = Get-Item -LiteralPath $path
if ($file.PSIsContainer) { throw "$path is a directory" }
$file.Length
(Get-FileHash -Algorithm SHA256 -LiteralPath $path).Hash
`, psLiteralPath(remotePath))
}

// readScript writes the remote file to stdout as base64 lines.
func readScript(remotePath string) string {
	return fmt.Sprintf(`$ErrorActionPreference = 'Stop'
$path = %s
$stream = [System.IO.File]::OpenRead($path)
try {
	$buffer = New-Object byte[] %d
	while (($read = $stream.Read($buffer, 0, $buffer.Length)) -gt 0) {
		[System.Convert]::ToBase64String($buffer, 0, $read)
	}
} finally {
	$stream.Close()
}
`, psLiteralPath(remotePath), downloadChunkSize)
}

// UploadFile copies localPath to remotePath through the shell and verifies
// the remote SHA-256.
func (c *Client) UploadFile(ctx context.Context, shellID, localPath, remotePath string) error {
	const op = "upload"
	if err := c.upload(ctx, shellID, localPath, remotePath); err != nil {
		return classify(op, err, KindFileTransfer)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, shellID, localPath, remotePath string) error {
	if localPath == "" || remotePath == "" {
		return errors.New("local and remote paths are required")
	}
	shell, err := c.shell(shellID)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}
	if !stat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file (mode: %s)", localPath, stat.Mode())
	}

	commandLine, err := encodeScript(uploadScript(remotePath))
	if err != nil {
		return err
	}
	proc, err := shell.Start(ctx, commandLine)
	if err != nil {
		return fmt.Errorf("start upload: %w", err)
	}

	hasher := sha256.New()
	sent, err := c.sendChunks(ctx, proc, io.TeeReader(file, hasher))
	if err != nil {
		_ = proc.Terminate(context.WithoutCancel(ctx))
		return err
	}

	out, err := c.collect(ctx, proc)
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("remote write to %s failed (exit code %d): %s", remotePath, out.ExitCode, cleanErrorStream(out.Stderr))
	}

	localHash := hex.EncodeToString(hasher.Sum(nil))
	remoteHash := strings.TrimSpace(out.Stdout)
	if !strings.EqualFold(localHash, remoteHash) {
		return fmt.Errorf("checksum mismatch for %s: local %s, remote %s", remotePath, localHash, remoteHash)
	}

	c.logger.Debug("upload complete", "remote", remotePath, "bytes", sent, "sha256", localHash)
	return nil
}

// sendChunks streams r to proc's stdin as base64 lines and closes the stream.
func (c *Client) sendChunks(ctx context.Context, proc *winrs.Process, r io.Reader) (int64, error) {
	buf := make([]byte, uploadChunkSize)
	var sent int64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			line := base64.StdEncoding.EncodeToString(buf[:n]) + "\r\n"
			if sendErr := proc.Send(ctx, []byte(line), false); sendErr != nil {
				return sent, fmt.Errorf("send chunk at offset %d: %w", sent, sendErr)
			}
			sent += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return sent, fmt.Errorf("read local file: %w", err)
		}
	}
	if err := proc.Send(ctx, nil, true); err != nil {
		return sent, fmt.Errorf("close input: %w", err)
	}
	return sent, nil
}

// DownloadFile copies remotePath to localPath through the shell and verifies
// size and SHA-256. The content is decoded to disk as each Receive batch
// arrives, so memory use does not grow with the file size. localPath is only
// replaced once the copy is verified; a new file gets the mode os.Create
// would give it and an existing one keeps its permissions.
func (c *Client) DownloadFile(ctx context.Context, shellID, remotePath, localPath string) error {
	const op = "download"
	if err := c.download(ctx, shellID, remotePath, localPath); err != nil {
		return classify(op, err, KindFileTransfer)
	}
	return nil
}

func (c *Client) download(ctx context.Context, shellID, remotePath, localPath string) error {
	if localPath == "" || remotePath == "" {
		return errors.New("local and remote paths are required")
	}
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		return fmt.Errorf("local path %s is a directory", localPath)
	}
	shell, err := c.shell(shellID)
	if err != nil {
		return err
	}

	stat, err := c.runScript(ctx, shell, statScript(remotePath))
	if err != nil {
		return fmt.Errorf("stat %s: %w", remotePath, err)
	}
	size, remoteHash, err := parseStat(stat)
	if err != nil {
		return fmt.Errorf("stat %s: %w", remotePath, err)
	}

	tmp, err := createPartFile(localPath)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hasher := sha256.New()
	dec := &lineDecoder{w: io.MultiWriter(tmp, hasher)}
	if err := c.streamScript(ctx, shell, readScript(remotePath), dec); err != nil {
		return fmt.Errorf("read %s: %w", remotePath, err)
	}
	if err := dec.Close(); err != nil {
		return fmt.Errorf("read %s: %w", remotePath, err)
	}
	if dec.written != size {
		return fmt.Errorf("size mismatch for %s: remote %d bytes, received %d", remotePath, size, dec.written)
	}
	localHash := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(localHash, remoteHash) {
		return fmt.Errorf("checksum mismatch for %s: local %s, remote %s", remotePath, localHash, remoteHash)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write local file: %w", err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return fmt.Errorf("write local file: %w", err)
	}
	tmp = nil

	c.logger.Debug("download complete", "remote", remotePath, "bytes", dec.written, "sha256", localHash)
	return nil
}

// createPartFile creates the file a download is written to before it is
// renamed over localPath. It is created the way os.Create creates a file, so
// the umask applies, and takes the permission bits of an existing localPath.
func createPartFile(localPath string) (*os.File, error) {
	name := filepath.Join(filepath.Dir(localPath), "."+filepath.Base(localPath)+"."+uuid.NewString()+".part")
	tmp, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(localPath); err == nil {
		if err := tmp.Chmod(info.Mode().Perm()); err != nil {
			tmp.Close()
			os.Remove(name)
			return nil, err
		}
	}
	return tmp, nil
}

// runScript runs a PowerShell script to completion and returns its stdout.
func (c *Client) runScript(ctx context.Context, shell *winrs.Shell, script string) (string, error) {
	var out strings.Builder
	if err := c.streamScript(ctx, shell, script, &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// streamScript runs a PowerShell script, writing stdout to w as it arrives.
// stderr is kept for the error when the script exits non-zero.
func (c *Client) streamScript(ctx context.Context, shell *winrs.Shell, script string, w io.Writer) error {
	commandLine, err := encodeScript(script)
	if err != nil {
		return err
	}
	proc, err := shell.Start(ctx, commandLine)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	streamErr := proc.Stream(ctx, w, &stderr)
	if err := proc.Terminate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("terminate command failed", "command_id", proc.CommandID(), "error", err)
	}
	if streamErr != nil {
		return streamErr
	}
	if code := proc.ExitCode(); code != 0 {
		return fmt.Errorf("remote script failed (exit code %d): %s", code, cleanErrorStream(stderr.String()))
	}
	return nil
}

func parseStat(out string) (int64, string, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("unexpected file info %q", out)
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || size < 0 {
		return 0, "", fmt.Errorf("unexpected file size %q", fields[0])
	}
	return size, fields[1], nil
}

// maxLineSize bounds a buffered base64 line; the read script never writes
// one longer than the encoding of downloadChunkSize.
const maxLineSize = 2 * downloadChunkSize

// lineDecoder is an io.Writer that decodes newline-separated base64 and
// writes the raw bytes to w. A line split across writes is held until its
// newline arrives. Close decodes a final unterminated line.
type lineDecoder struct {
	w       io.Writer
	pending []byte
	written int64
}

func (d *lineDecoder) Write(p []byte) (int, error) {
	d.pending = append(d.pending, p...)
	start := 0
	for {
		i := bytes.IndexByte(d.pending[start:], '\n')
		if i < 0 {
			break
		}
		if err := d.decode(d.pending[start : start+i]); err != nil {
			return 0, err
		}
		start += i + 1
	}
	d.pending = d.pending[:copy(d.pending, d.pending[start:])]
	if len(d.pending) > maxLineSize {
		return 0, fmt.Errorf("chunk at offset %d exceeds %d bytes", d.written, maxLineSize)
	}
	return len(p), nil
}

func (d *lineDecoder) Close() error {
	err := d.decode(d.pending)
	d.pending = nil
	return err
}

func (d *lineDecoder) decode(line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	chunk := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
	n, err := base64.StdEncoding.Decode(chunk, line)
	if err != nil {
		return fmt.Errorf("decode chunk at offset %d: %w", d.written, err)
	}
	n, err = d.w.Write(chunk[:n])
	d.written += int64(n)
	if err != nil {
		return fmt.Errorf("write local file: %w", err)
	}
	return nil
}
