package log

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	// DefaultTraceMaxSize is the size at which a trace file is rotated.
	DefaultTraceMaxSize = 10 << 20
	// DefaultTraceBackups is the number of rotated trace files kept.
	DefaultTraceBackups = 3
)

// TraceFile is an append-only protocol trace. Once a record would take it
// past the size limit, path becomes path.1, path.1 becomes path.2 and so on,
// and the oldest generation falls off the end.
type TraceFile struct {
	mu sync.Mutex

	// generations[0] is the live file, generations[i] its i-th backup.
	generations []string
	limit       int64

	file    *os.File
	written int64
}

// OpenTraceFile opens (or creates) the trace file at path, creating missing
// parent directories. Non-positive limits fall back to the defaults.
func OpenTraceFile(path string, maxSize int64, maxBackups int) (*TraceFile, error) {
	if maxSize <= 0 {
		maxSize = DefaultTraceMaxSize
	}
	if maxBackups <= 0 {
		maxBackups = DefaultTraceBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}

	gens := make([]string, maxBackups+1)
	gens[0] = path
	for i := 1; i <= maxBackups; i++ {
		gens[i] = path + "." + strconv.Itoa(i)
	}

	f, size, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &TraceFile{generations: gens, limit: maxSize, file: f, written: size}, nil
}

// openAppend opens path for appending and reports its current size. Traces
// can hold host names and command lines, so new files are owner-only.
func openAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, 0, fmt.Errorf("open trace file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat trace file: %w", err)
	}
	return f, info.Size(), nil
}

// Write implements io.Writer. A record is never split across files; one
// larger than the limit is written whole into a fresh file.
func (tf *TraceFile) Write(p []byte) (int, error) {
	tf.mu.Lock()
	defer tf.mu.Unlock()

	if tf.file == nil {
		return 0, os.ErrClosed
	}
	if tf.written > 0 && tf.written+int64(len(p)) > tf.limit {
		if err := tf.rotate(); err != nil {
			return 0, fmt.Errorf("rotate trace file: %w", err)
		}
	}
	n, err := tf.file.Write(p)
	tf.written += int64(n)
	return n, err
}

// rotate moves every generation one slot older, overwriting the oldest, and
// starts an empty live file. mu must be held.
func (tf *TraceFile) rotate() error {
	if err := tf.file.Close(); err != nil {
		return err
	}
	tf.file = nil

	for i := len(tf.generations) - 1; i > 0; i-- {
		err := os.Rename(tf.generations[i-1], tf.generations[i])
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	f, size, err := openAppend(tf.generations[0])
	if err != nil {
		return err
	}
	tf.file, tf.written = f, size
	return nil
}

// Close implements io.Closer. It is idempotent; later writes fail with
// os.ErrClosed.
func (tf *TraceFile) Close() error {
	tf.mu.Lock()
	defer tf.mu.Unlock()

	if tf.file == nil {
		return nil
	}
	err := tf.file.Close()
	tf.file = nil
	return err
}
