// Package session runs one invocation against a Windows host: connect,
// open a shell, dispatch a single command variant and close the shell on
// every path that opened it.
//
// The remote side is reached only through the Remote interface, which
// *winrm.Client implements. Tests substitute a fake Connector.
//
//	orch := session.New(session.DefaultConnector, gate, os.Stdout, os.Stderr)
//	err := orch.Run(ctx, session.Invocation{
//	    Endpoint: "10.0.3.203",
//	    User:     "admin",
//	    Password: password,
//	    Auth:     winrm.AuthNTLM,
//	    TLS:      endpoint.ModeEncrypt,
//	    Command:  session.RunCommand{Text: "whoami"},
//	})
//	os.Exit(exitcode.Report(os.Stderr, err))
package session
