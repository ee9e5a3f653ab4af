package session

import "fmt"

// Command is the single action an invocation performs. The set is closed:
// RunCommand, UploadFile and DownloadFile are the only implementations.
type Command interface {
	fmt.Stringer
	isCommand()
}

// RunCommand runs Text in the remote cmd shell.
type RunCommand struct {
	Text string
}

// UploadFile copies the local file Local to Remote.
type UploadFile struct {
	Local  string
	Remote string
}

// DownloadFile copies the remote file Remote to Local.
type DownloadFile struct {
	Remote string
	Local  string
}

func (RunCommand) isCommand()   {}
func (UploadFile) isCommand()   {}
func (DownloadFile) isCommand() {}

func (c RunCommand) String() string   { return "command " + c.Text }
func (c UploadFile) String() string   { return "upload " + c.Local + " " + c.Remote }
func (c DownloadFile) String() string { return "download " + c.Remote + " " + c.Local }
