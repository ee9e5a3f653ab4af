package wsman

import (
	"encoding/xml"
	"sort"
)

// Selector is a WS-Management selector key/value pair.
type Selector struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

// EndpointReference identifies a created shell instance on the server.
type EndpointReference struct {
	Address     string
	ResourceURI string
	Selectors   []Selector
}

// ShellID returns the value of the ShellId selector, or "" if absent.
func (r *EndpointReference) ShellID() string {
	if r == nil {
		return ""
	}
	for _, s := range r.Selectors {
		if s.Name == "ShellId" {
			return s.Value
		}
	}
	return ""
}

// ShellOptions configures the shell body and option set sent with Create.
type ShellOptions struct {
	// WorkingDirectory is the initial directory of the shell.
	WorkingDirectory string
	// Environment holds variables set in the shell.
	Environment map[string]string
	// IdleTimeout is an ISO 8601 duration (e.g. "PT1800S").
	IdleTimeout string
	// Codepage selects the console codepage (437, 65001, ...). Zero omits it.
	Codepage int
	// NoProfile skips loading the user profile.
	NoProfile bool
}

// ReceiveResult contains the output of a single Receive round trip.
type ReceiveResult struct {
	Stdout       []byte
	Stderr       []byte
	CommandState string
	ExitCode     int
	Done         bool
}

// Request bodies.

type shellBody struct {
	XMLName          xml.Name     `xml:"rsp:Shell"`
	Environment      *environment `xml:"rsp:Environment,omitempty"`
	WorkingDirectory string       `xml:"rsp:WorkingDirectory,omitempty"`
	IdleTimeOut      string       `xml:"rsp:IdleTimeOut,omitempty"`
	InputStreams     string       `xml:"rsp:InputStreams"`
	OutputStreams    string       `xml:"rsp:OutputStreams"`
}

type environment struct {
	Variables []variable `xml:"rsp:Variable"`
}

type variable struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

type commandLine struct {
	XMLName   xml.Name `xml:"rsp:CommandLine"`
	Command   string   `xml:"rsp:Command"`
	Arguments []string `xml:"rsp:Arguments,omitempty"`
}

type sendBody struct {
	XMLName xml.Name   `xml:"rsp:Send"`
	Stream  streamData `xml:"rsp:Stream"`
}

type streamData struct {
	Name      string `xml:"Name,attr"`
	CommandID string `xml:"CommandId,attr,omitempty"`
	End       string `xml:"End,attr,omitempty"`
	Content   string `xml:",chardata"`
}

type receiveBody struct {
	XMLName       xml.Name      `xml:"rsp:Receive"`
	DesiredStream desiredStream `xml:"rsp:DesiredStream"`
}

type desiredStream struct {
	CommandID string `xml:"CommandId,attr,omitempty"`
	Streams   string `xml:",chardata"`
}

type signalBody struct {
	XMLName   xml.Name `xml:"rsp:Signal"`
	CommandID string   `xml:"CommandId,attr"`
	Code      string   `xml:"rsp:Code"`
}

// Response bodies.

type createResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		ResourceCreated struct {
			Address             string `xml:"Address"`
			ReferenceParameters struct {
				ResourceURI string `xml:"ResourceURI"`
				SelectorSet struct {
					Selectors []Selector `xml:"Selector"`
				} `xml:"SelectorSet"`
			} `xml:"ReferenceParameters"`
		} `xml:"ResourceCreated"`
		Shell struct {
			ShellID string `xml:"ShellId"`
		} `xml:"Shell"`
	} `xml:"Body"`
}

type commandResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		CommandResponse struct {
			CommandID string `xml:"CommandId"`
		} `xml:"http://schemas.microsoft.com/wbem/wsman/1/windows/shell CommandResponse"`
	} `xml:"Body"`
}

type receiveResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		ReceiveResponse struct {
			Streams []struct {
				Name      string `xml:"Name,attr"`
				CommandID string `xml:"CommandId,attr"`
				End       string `xml:"End,attr"`
				Content   string `xml:",chardata"`
			} `xml:"Stream"`
			CommandState struct {
				CommandID string `xml:"CommandId,attr"`
				State     string `xml:"State,attr"`
				ExitCode  *int   `xml:"ExitCode"`
			} `xml:"CommandState"`
		} `xml:"ReceiveResponse"`
	} `xml:"Body"`
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
