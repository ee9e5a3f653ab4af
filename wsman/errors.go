package wsman

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResponse marks a reply that is not a fault but cannot be used:
// undecodable XML or stream data, or a missing shell or command ID.
var ErrInvalidResponse = errors.New("wsman: invalid response")

// WSMan fault codes the client reacts to.
const (
	// FaultCodeAccessDenied is the Win32 ERROR_ACCESS_DENIED code.
	FaultCodeAccessDenied = 5
	// FaultCodeOperationTimeout is reported when a Receive found no output
	// within the operation timeout.
	FaultCodeOperationTimeout = 2150858793
)

// Fault represents a WSMan SOAP fault.
type Fault struct {
	// Code is the SOAP fault code (e.g., "s:Sender", "s:Receiver").
	Code string

	// Subcode is the WSMan-specific subcode (e.g., "w:InvalidSelectors").
	Subcode string

	// Reason is the human-readable fault reason.
	Reason string

	// WSManCode is the numeric WSMan error code.
	WSManCode int64

	// Machine is the machine that generated the fault.
	Machine string

	// Message is the WSMan fault message.
	Message string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	var parts []string
	if f.Code != "" {
		parts = append(parts, f.Code)
	}
	if f.Subcode != "" {
		parts = append(parts, f.Subcode)
	}
	if reason := strings.TrimSpace(f.Reason); reason != "" {
		parts = append(parts, reason)
	} else if msg := strings.TrimSpace(f.Message); msg != "" {
		parts = append(parts, msg)
	}
	if f.WSManCode != 0 {
		parts = append(parts, fmt.Sprintf("code=%d", f.WSManCode))
	}
	return "wsman fault: " + strings.Join(parts, ": ")
}

// IsAccessDenied reports whether the fault means the caller was not allowed.
func (f *Fault) IsAccessDenied() bool {
	return strings.Contains(f.Subcode, "AccessDenied") || f.WSManCode == FaultCodeAccessDenied
}

// IsShellNotFound reports whether the fault refers to an unknown shell.
func (f *Fault) IsShellNotFound() bool {
	return strings.Contains(f.Subcode, "InvalidSelectors") ||
		strings.Contains(f.Reason, "shell was not found")
}

// IsTimeout reports whether the fault is an operation timeout.
func (f *Fault) IsTimeout() bool {
	return strings.Contains(f.Subcode, "TimedOut") ||
		f.WSManCode == FaultCodeOperationTimeout
}

// AsFault returns the Fault in err's chain, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// ParseFault parses a SOAP response and returns a Fault if present.
// Returns nil, nil if the response does not contain a fault.
func ParseFault(data []byte) (*Fault, error) {
	if !strings.Contains(string(data), ":Fault") && !strings.Contains(string(data), "<Fault") {
		return nil, nil
	}

	var env faultEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: parse fault: %w", ErrInvalidResponse, err)
	}
	if env.Body.Fault.Code.Value == "" {
		return nil, nil
	}

	return &Fault{
		Code:      env.Body.Fault.Code.Value,
		Subcode:   env.Body.Fault.Code.Subcode.Value,
		Reason:    env.Body.Fault.Reason.Text,
		WSManCode: env.Body.Fault.Detail.WSManFault.Code,
		Machine:   env.Body.Fault.Detail.WSManFault.Machine,
		Message:   env.Body.Fault.Detail.WSManFault.Message,
	}, nil
}

// CheckFault returns the fault carried by data as an error, or nil.
func CheckFault(data []byte) error {
	fault, err := ParseFault(data)
	if err != nil {
		return err
	}
	if fault != nil {
		return fault
	}
	return nil
}

type faultEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault struct {
			Code struct {
				Value   string `xml:"Value"`
				Subcode struct {
					Value string `xml:"Value"`
				} `xml:"Subcode"`
			} `xml:"Code"`
			Reason struct {
				Text string `xml:"Text"`
			} `xml:"Reason"`
			Detail struct {
				WSManFault struct {
					Code    int64  `xml:"Code,attr"`
					Machine string `xml:"Machine,attr"`
					Message string `xml:"Message"`
				} `xml:"WSManFault"`
			} `xml:"Detail"`
		} `xml:"Fault"`
	} `xml:"Body"`
}
