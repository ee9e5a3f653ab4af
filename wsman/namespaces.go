// Package wsman implements the subset of WS-Management needed to drive a
// Windows Remote Shell: shell creation and deletion, command creation, input,
// output retrieval and signals.
package wsman

// XML namespace URIs used in WSMan SOAP envelopes.
const (
	NsSoap           = "http://www.w3.org/2003/05/soap-envelope"
	NsAddressing     = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	NsWsman          = "http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
	NsWsmanMicrosoft = "http://schemas.microsoft.com/wbem/wsman/1/wsman.xsd"
	NsShell          = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell"
)

// AddressAnonymous is the WS-Addressing anonymous reply address.
const AddressAnonymous = "http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous"

// ResourceURICmd is the resource URI of the WinRS cmd.exe shell.
const ResourceURICmd = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/cmd"

// WS-Transfer actions.
const (
	ActionCreate = "http://schemas.xmlsoap.org/ws/2004/09/transfer/Create"
	ActionDelete = "http://schemas.xmlsoap.org/ws/2004/09/transfer/Delete"
)

// Windows Remote Shell actions.
const (
	ActionCommand = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Command"
	ActionSend    = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Send"
	ActionReceive = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Receive"
	ActionSignal  = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Signal"
)

// Signal codes accepted by the Signal action.
const (
	SignalTerminate = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/signal/terminate"
	SignalCtrlC     = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/signal/ctrl_c"
	SignalCtrlBreak = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/signal/ctrl_break"
)

// Command states reported in ReceiveResponse.
const (
	CommandStateDone    = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Done"
	CommandStateRunning = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Running"
)

// Envelope defaults sent on every request.
const (
	DefaultMaxEnvelopeSize  = 153600
	DefaultOperationTimeout = "PT60S"
	ReceiveTimeout          = "PT20S"
	DefaultLocale           = "en-US"
)
