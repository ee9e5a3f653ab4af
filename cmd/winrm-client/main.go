// winrm-client runs one command, upload or download against a Windows host
// over WinRM and exits with a code scripts can branch on.
//
// Usage:
//
//	winrm-client -e 10.0.3.203 -u admin -p pass --encrypt --insecure command "whoami"
//	winrm-client -e server -u admin -p pass upload local.txt C:\remote.txt
//	winrm-client -e server -u admin -p pass download C:\file.txt ./local.txt
//
// Every flag except --cacert, --quiet and --config also reads a WINRM_*
// environment variable. Boolean variables accept only "true" or "false".
//
// Exit codes: 0 success, 1 authentication, 2 connection or protocol,
// 3 command or usage, 4 file transfer.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/smnsjas/go-winrm/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, session.DefaultConnector)
	stop()
	os.Exit(code)
}
