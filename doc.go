// Package winrmclient is a WinRM client for one-shot remote work on Windows
// hosts: run a command, upload a file or download one, then exit with a code
// that says what went wrong.
//
// # Architecture
//
// The module is organized into layers:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  cmd/winrm-client   CLI: flags, env, config file        │
//	├─────────────────────────────────────────────────────────┤
//	│  session/           open → dispatch → close lifecycle   │
//	├─────────────────────────────────────────────────────────┤
//	│  winrm/             shells, commands, file transfer     │
//	├─────────────────────────────────────────────────────────┤
//	│  winrs/             WinRS shell and process             │
//	├─────────────────────────────────────────────────────────┤
//	│  wsman/             SOAP envelopes, HTTP, auth          │
//	└─────────────────────────────────────────────────────────┘
//
// # Quick Start
//
//	c, err := winrm.New(winrm.Config{
//	    Endpoint: "https://server:5986/wsman",
//	    Username: `CORP\administrator`,
//	    Password: "password",
//	    Auth:     winrm.AuthNTLM,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	shellID, err := c.OpenShell(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseShell(ctx, shellID)
//
//	commandID, err := c.RunCommand(ctx, shellID, "ipconfig /all")
//	out, err := c.CommandOutput(ctx, shellID, commandID)
//
// # Authentication
//
//   - NTLM (default): go-ntlmssp, DOMAIN\user or user@domain
//   - Basic: only advisable over HTTPS
//   - Kerberos: pure Go SPNEGO with a password login against the KDCs in
//     krb5.conf ($KRB5_CONFIG or /etc/krb5.conf)
//
// Messages are not encrypted at the WSMan layer; use HTTPS (--encrypt) when
// the network is not trusted.
package winrmclient
