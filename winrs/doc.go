// Package winrs provides a Windows Remote Shell (WinRS) client.
//
// WinRS executes cmd.exe command lines on remote Windows systems over
// WS-Management. A Shell wraps one remote shell instance; a Process is one
// command started in it.
//
// Basic usage:
//
//	shell, err := winrs.NewShell(ctx, wsmanClient,
//	    winrs.WithWorkingDirectory("C:\\temp"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer shell.Close(ctx)
//
//	proc, err := shell.Run(ctx, "dir /b")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(string(proc.Stdout()))
package winrs
