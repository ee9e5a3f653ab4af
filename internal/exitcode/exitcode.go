// Package exitcode maps the outcome of a run onto the process exit code
// scripts branch on.
package exitcode

import (
	"fmt"
	"io"

	"github.com/smnsjas/go-winrm/winrm"
)

const (
	Success         = 0
	AuthError       = 1
	ConnectionError = 2
	CommandError    = 3
	FileError       = 4
)

// byKind has exactly one entry per winrm.Kind. Adding a kind without an
// exit code fails to compile.
var byKind = [...]int{
	winrm.KindOther:           CommandError,
	winrm.KindAuthentication:  AuthError,
	winrm.KindConnection:      ConnectionError,
	winrm.KindInvalidResponse: ConnectionError,
	winrm.KindFileTransfer:    FileError,
}

var (
	_ [winrm.NumKinds - len(byKind)]struct{}
	_ [len(byKind) - winrm.NumKinds]struct{}
)

// Code returns the exit code for err. Errors that carry no winrm.Kind,
// such as a remote command's non-zero exit status or a usage error, are
// CommandError.
func Code(err error) int {
	if err == nil {
		return Success
	}
	kind := winrm.KindOf(err)
	if kind < 0 || int(kind) >= len(byKind) {
		return CommandError
	}
	return byKind[kind]
}

// Report prints "Error: <message>" to w when err is non-nil and returns
// the exit code for err.
func Report(w io.Writer, err error) int {
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return Code(err)
}
