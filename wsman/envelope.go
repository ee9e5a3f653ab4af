package wsman

import (
	"encoding/xml"
	"strings"

	"github.com/google/uuid"
)

// Envelope represents a SOAP 1.2 envelope for WS-Management messages.
type Envelope struct {
	XMLName xml.Name `xml:"s:Envelope"`

	NsSoap    string `xml:"xmlns:s,attr"`
	NsAddr    string `xml:"xmlns:a,attr"`
	NsWsman   string `xml:"xmlns:w,attr"`
	NsMsWsman string `xml:"xmlns:p,attr"`
	NsShellNs string `xml:"xmlns:rsp,attr,omitempty"`

	Header *Header `xml:"s:Header"`
	Body   *Body   `xml:"s:Body"`
}

// Header holds the WS-Addressing and WS-Management headers.
type Header struct {
	Action    string   `xml:"a:Action,omitempty"`
	To        string   `xml:"a:To,omitempty"`
	MessageID string   `xml:"a:MessageID,omitempty"`
	ReplyTo   *ReplyTo `xml:"a:ReplyTo,omitempty"`

	ResourceURI      string  `xml:"w:ResourceURI,omitempty"`
	MaxEnvelopeSize  int     `xml:"w:MaxEnvelopeSize,omitempty"`
	OperationTimeout string  `xml:"w:OperationTimeout,omitempty"`
	Locale           *Locale `xml:"w:Locale,omitempty"`
	DataLocale       *Locale `xml:"p:DataLocale,omitempty"`
	SessionID        string  `xml:"p:SessionId,omitempty"`

	SelectorSet *SelectorSet `xml:"w:SelectorSet,omitempty"`
	OptionSet   *OptionSet   `xml:"w:OptionSet,omitempty"`
}

// ReplyTo is the WS-Addressing ReplyTo element.
type ReplyTo struct {
	Address string `xml:"a:Address"`
}

// Locale carries the xml:lang attribute WinRM expects on locale headers.
type Locale struct {
	Lang string `xml:"xml:lang,attr"`
}

// SelectorSet contains selectors for targeting a resource instance.
type SelectorSet struct {
	Selectors []Selector `xml:"w:Selector"`
}

// OptionSet contains options for the operation.
type OptionSet struct {
	Options []Option `xml:"w:Option"`
}

// Option is a single WSMan option.
type Option struct {
	Name       string `xml:"Name,attr"`
	MustComply string `xml:"MustComply,attr,omitempty"`
	Value      string `xml:",chardata"`
}

// Body holds pre-rendered body XML.
type Body struct {
	Content []byte `xml:",innerxml"`
}

// NewEnvelope creates an envelope with the namespace declarations every
// request needs.
func NewEnvelope() *Envelope {
	return &Envelope{
		NsSoap:    NsSoap,
		NsAddr:    NsAddressing,
		NsWsman:   NsWsman,
		NsMsWsman: NsWsmanMicrosoft,
		Header:    &Header{},
		Body:      &Body{},
	}
}

// newRequest builds the common header block for an action against the shell
// resource: addressing, session, locale and size limits.
func newRequest(action, to, resourceURI, sessionID string) *Envelope {
	return NewEnvelope().
		WithAction(action).
		WithTo(to).
		WithResourceURI(resourceURI).
		WithMessageID(newMessageID()).
		WithReplyTo(AddressAnonymous).
		WithSessionID(sessionID).
		WithLocale(DefaultLocale).
		WithMaxEnvelopeSize(DefaultMaxEnvelopeSize).
		WithOperationTimeout(DefaultOperationTimeout).
		WithShellNamespace()
}

func newMessageID() string {
	return "uuid:" + strings.ToUpper(uuid.New().String())
}

// WithAction sets the WS-Addressing Action header.
func (e *Envelope) WithAction(action string) *Envelope {
	e.Header.Action = action
	return e
}

// WithTo sets the WS-Addressing To header.
func (e *Envelope) WithTo(to string) *Envelope {
	e.Header.To = to
	return e
}

// WithMessageID sets the WS-Addressing MessageID header.
func (e *Envelope) WithMessageID(id string) *Envelope {
	e.Header.MessageID = id
	return e
}

// WithReplyTo sets the WS-Addressing ReplyTo header.
func (e *Envelope) WithReplyTo(address string) *Envelope {
	e.Header.ReplyTo = &ReplyTo{Address: address}
	return e
}

// WithResourceURI sets the WS-Management ResourceURI header.
func (e *Envelope) WithResourceURI(uri string) *Envelope {
	e.Header.ResourceURI = uri
	return e
}

// WithMaxEnvelopeSize sets the WS-Management MaxEnvelopeSize header.
func (e *Envelope) WithMaxEnvelopeSize(size int) *Envelope {
	e.Header.MaxEnvelopeSize = size
	return e
}

// WithOperationTimeout sets the OperationTimeout header (ISO 8601, e.g. "PT60S").
func (e *Envelope) WithOperationTimeout(timeout string) *Envelope {
	e.Header.OperationTimeout = timeout
	return e
}

// WithLocale sets both the Locale and DataLocale headers.
func (e *Envelope) WithLocale(lang string) *Envelope {
	e.Header.Locale = &Locale{Lang: lang}
	e.Header.DataLocale = &Locale{Lang: lang}
	return e
}

// WithSessionID sets the Microsoft SessionId header.
func (e *Envelope) WithSessionID(id string) *Envelope {
	e.Header.SessionID = id
	return e
}

// WithShellNamespace declares the rsp prefix on the envelope.
func (e *Envelope) WithShellNamespace() *Envelope {
	e.NsShellNs = NsShell
	return e
}

// WithSelector appends a selector.
func (e *Envelope) WithSelector(name, value string) *Envelope {
	if e.Header.SelectorSet == nil {
		e.Header.SelectorSet = &SelectorSet{}
	}
	e.Header.SelectorSet.Selectors = append(e.Header.SelectorSet.Selectors,
		Selector{Name: name, Value: value})
	return e
}

// WithSelectors appends every selector of an endpoint reference.
func (e *Envelope) WithSelectors(selectors []Selector) *Envelope {
	for _, s := range selectors {
		e.WithSelector(s.Name, s.Value)
	}
	return e
}

// WithOption appends an option.
func (e *Envelope) WithOption(name, value string) *Envelope {
	return e.withOption(Option{Name: name, Value: value})
}

// WithOptionMustComply appends an option the server must honour.
func (e *Envelope) WithOptionMustComply(name, value string) *Envelope {
	return e.withOption(Option{Name: name, MustComply: "true", Value: value})
}

func (e *Envelope) withOption(opt Option) *Envelope {
	if e.Header.OptionSet == nil {
		e.Header.OptionSet = &OptionSet{}
	}
	e.Header.OptionSet.Options = append(e.Header.OptionSet.Options, opt)
	return e
}

// WithBody sets the SOAP body content.
func (e *Envelope) WithBody(content []byte) *Envelope {
	e.Body.Content = content
	return e
}

// Marshal serializes the envelope to XML.
func (e *Envelope) Marshal() ([]byte, error) {
	return xml.Marshal(e)
}
