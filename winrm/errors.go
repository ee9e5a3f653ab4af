package winrm

import (
	"context"
	"errors"
	"fmt"

	"github.com/smnsjas/go-winrm/wsman"
	"github.com/smnsjas/go-winrm/wsman/auth"
	"github.com/smnsjas/go-winrm/wsman/transport"
)

// Kind classifies a failure for callers that map outcomes onto exit codes.
type Kind int

// The set of kinds is closed; NumKinds lets callers size lookup tables and
// fail to compile when a kind is added.
const (
	KindOther Kind = iota
	KindAuthentication
	KindConnection
	KindInvalidResponse
	KindFileTransfer

	NumKinds = iota
)

var kindNames = [...]string{
	KindOther:           "error",
	KindAuthentication:  "authentication failed",
	KindConnection:      "connection error",
	KindInvalidResponse: "invalid response",
	KindFileTransfer:    "file transfer failed",
}

var _ [NumKinds - len(kindNames)]struct{}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is returned by every Client method.
type Error struct {
	Kind Kind
	// Op names the failed operation ("open shell", "upload", ...).
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the *Error in err's chain, or KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// classify wraps err as an *Error for op. Authentication and connection
// failures are recognized first; what remains gets the protocol kind or, for
// file transfers, fallback.
func classify(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kindFor(err, fallback), Op: op, Err: err}
}

func kindFor(err error, fallback Kind) Kind {
	if errors.Is(err, transport.ErrUnauthorized) ||
		errors.Is(err, transport.ErrForbidden) ||
		errors.Is(err, auth.ErrAuthFailed) {
		return KindAuthentication
	}
	if f, ok := wsman.AsFault(err); ok && f.IsAccessDenied() {
		return KindAuthentication
	}

	if errors.Is(err, context.Canceled) {
		return KindOther
	}
	var reqErr *transport.RequestError
	if errors.As(err, &reqErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindConnection
	}

	if fallback == KindFileTransfer {
		return KindFileTransfer
	}

	var statusErr *transport.StatusError
	if _, ok := wsman.AsFault(err); ok ||
		errors.As(err, &statusErr) ||
		errors.Is(err, wsman.ErrInvalidResponse) {
		return KindInvalidResponse
	}
	return fallback
}
