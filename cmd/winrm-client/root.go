package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/smnsjas/go-winrm/internal/endpoint"
	"github.com/smnsjas/go-winrm/internal/exitcode"
	"github.com/smnsjas/go-winrm/internal/log"
	"github.com/smnsjas/go-winrm/session"
	"github.com/smnsjas/go-winrm/winrm"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

// envNames maps setting keys to their environment variables.
var envNames = map[string]string{
	"endpoint":   "WINRM_ENDPOINT",
	"user":       "WINRM_USER",
	"password":   "WINRM_PASSWORD",
	"auth":       "WINRM_AUTH",
	"encrypt":    "WINRM_ENCRYPT",
	"no-encrypt": "WINRM_NO_ENCRYPT",
	"insecure":   "WINRM_INSECURE",
	"verbose":    "WINRM_VERBOSE",
	"timeout":    "WINRM_TIMEOUT",
	"log-file":   "WINRM_LOG_FILE",
}

// app holds one process run's streams and configuration.
type app struct {
	v       *viper.Viper
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	connect session.Connector
}

// run parses args, performs the invocation and returns the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, connect session.Connector) int {
	a := &app{
		v:       viper.New(),
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		connect: connect,
	}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitcode.Report(stderr, root.ExecuteContext(ctx))
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "winrm-client",
		Short: "A WinRM client for remote Windows management",
		Long: `Execute commands and transfer files on remote Windows systems using WinRM.

The endpoint may be a host name, an IP address or a full URL. The scheme,
port (5985 for HTTP, 5986 for HTTPS) and /wsman path are filled in.

Environment variables:
  WINRM_ENDPOINT, WINRM_USER, WINRM_PASSWORD, WINRM_AUTH,
  WINRM_ENCRYPT, WINRM_NO_ENCRYPT, WINRM_INSECURE, WINRM_VERBOSE,
  WINRM_TIMEOUT, WINRM_LOG_FILE
Boolean variables accept only 'true' or 'false' (lowercase).

Exit codes:
  0 success, 1 authentication error, 2 connection or response error,
  3 command, usage or other error, 4 file transfer error
Usage errors (bad flags, missing settings) exit with 3, not 2.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("a subcommand is required: command, upload or download")
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("endpoint", "e", "", "WinRM endpoint (host, IP or URL)")
	flags.StringP("user", "u", "", `username (user, DOMAIN\user or user@REALM)`)
	flags.StringP("password", "p", "", "password (prompted for when omitted)")
	flags.StringP("auth", "a", string(winrm.DefaultAuthMethod), "auth method: ntlm, basic or kerberos")
	flags.Bool("encrypt", false, "use HTTPS (port 5986)")
	flags.Bool("no-encrypt", false, "use plain HTTP (port 5985)")
	flags.BoolP("insecure", "k", false, "skip TLS certificate validation")
	flags.String("cacert", "", "path to a PEM CA certificate bundle")
	flags.BoolP("verbose", "v", false, "detailed output")
	flags.BoolP("quiet", "q", false, "no progress output (the default)")
	flags.Duration("timeout", 0, "per-request timeout, at least 25s (default 60s)")
	flags.String("log-file", "", "write a protocol trace to this file")
	flags.String("config", "", "read settings from a YAML, TOML or JSON file")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = a.v.BindPFlag(f.Name, f)
	})
	for key, env := range envNames {
		_ = a.v.BindEnv(key, env)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "command <cmd>",
			Short: "Execute a command in a remote cmd shell",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.execute(cmd, session.RunCommand{Text: args[0]})
			},
		},
		&cobra.Command{
			Use:   "upload <local> <remote>",
			Short: "Upload a local file to the remote host",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.execute(cmd, session.UploadFile{Local: args[0], Remote: args[1]})
			},
		},
		&cobra.Command{
			Use:   "download <remote> <local>",
			Short: "Download a remote file to the local host",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.execute(cmd, session.DownloadFile{Remote: args[0], Local: args[1]})
			},
		},
	)
	return root
}

func (a *app) execute(cmd *cobra.Command, command session.Command) error {
	inv, err := a.resolveInvocation(cmd.Flags(), command)
	if err != nil {
		return err
	}

	gate := log.NewGate(inv.Verbosity, a.stdout)
	logger, closeTrace, err := a.traceLogger(gate)
	if err != nil {
		return err
	}
	defer closeTrace()

	orch := session.New(a.connect, gate, a.stdout, a.stderr)
	orch.SetLogger(logger)
	return orch.Run(cmd.Context(), inv)
}

// resolveInvocation turns flags, environment and config file into an
// Invocation. Every check that needs no network happens here.
func (a *app) resolveInvocation(flags *pflag.FlagSet, command session.Command) (session.Invocation, error) {
	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return session.Invocation{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var errs []error
	boolean := func(key string) bool {
		b, err := a.boolSetting(flags, key)
		if err != nil {
			errs = append(errs, err)
		}
		return b
	}
	encrypt, noEncrypt := boolean("encrypt"), boolean("no-encrypt")
	insecure := boolean("insecure")
	verbose, quiet := boolean("verbose"), boolean("quiet")
	if len(errs) > 0 {
		return session.Invocation{}, errors.Join(errs...)
	}

	mode, err := endpoint.ModeFromFlags(encrypt, noEncrypt)
	if err != nil {
		return session.Invocation{}, err
	}
	level, err := log.LevelFromFlags(verbose, quiet)
	if err != nil {
		return session.Invocation{}, err
	}
	method, err := winrm.ParseAuthMethod(a.v.GetString("auth"))
	if err != nil {
		return session.Invocation{}, err
	}
	timeout := a.v.GetDuration("timeout")
	if timeout < 0 {
		return session.Invocation{}, fmt.Errorf("invalid timeout %s", timeout)
	}
	if timeout > 0 && timeout < winrm.MinTimeout {
		return session.Invocation{}, fmt.Errorf("invalid timeout %s: must be at least %s to outlast a receive poll", timeout, winrm.MinTimeout)
	}

	inv := session.Invocation{
		Endpoint:  strings.TrimSpace(a.v.GetString("endpoint")),
		User:      a.v.GetString("user"),
		Password:  a.v.GetString("password"),
		Auth:      method,
		TLS:       mode,
		Insecure:  insecure,
		CACert:    a.v.GetString("cacert"),
		Verbosity: level,
		Timeout:   timeout,
		Command:   command,
	}
	if inv.Endpoint == "" {
		return inv, errors.New("--endpoint is required (or set WINRM_ENDPOINT)")
	}
	if inv.User == "" {
		return inv, errors.New("--user is required (or set WINRM_USER)")
	}
	if inv.Password == "" {
		inv.Password = a.promptPassword()
	}
	if inv.Password == "" {
		return inv, errors.New("--password is required (or set WINRM_PASSWORD)")
	}
	return inv, nil
}

// boolSetting reads a boolean with flag > env > config precedence. Unlike
// flags, environment values must be exactly "true" or "false".
func (a *app) boolSetting(flags *pflag.FlagSet, key string) (bool, error) {
	if f := flags.Lookup(key); f != nil && f.Changed {
		return a.v.GetBool(key), nil
	}
	if env, ok := envNames[key]; ok {
		switch raw := os.Getenv(env); raw {
		case "":
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return false, fmt.Errorf("invalid value %q for %s: must be 'true' or 'false'", raw, env)
		}
	}
	return a.v.GetBool(key), nil
}

// promptPassword reads a password from stdin, without echo when it is a
// terminal. It returns "" when nothing can be read.
func (a *app) promptPassword() string {
	if a.stdin == nil {
		return ""
	}
	fmt.Fprint(a.stderr, "Password: ")

	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pass, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return ""
		}
		return string(pass)
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}

// traceLogger returns the protocol logger: a rotating trace file when
// --log-file is set, stderr when verbose, nothing otherwise.
func (a *app) traceLogger(gate log.Gate) (*slog.Logger, func(), error) {
	path := a.v.GetString("log-file")
	if path == "" {
		return gate.Logger(a.stderr), func() {}, nil
	}
	tf, err := log.OpenTraceFile(path, log.DefaultTraceMaxSize, log.DefaultTraceBackups)
	if err != nil {
		return nil, nil, err
	}
	return log.NewTraceLogger(tf), func() { _ = tf.Close() }, nil
}
