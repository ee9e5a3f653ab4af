package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-krb5/krb5/client"
	"github.com/go-krb5/krb5/config"
	"github.com/go-krb5/krb5/spnego"
)

// DefaultKrb5ConfPath is used when neither the config nor $KRB5_CONFIG names one.
const DefaultKrb5ConfPath = "/etc/krb5.conf"

// KerberosProviderConfig configures NewKerberosProvider.
type KerberosProviderConfig struct {
	// TargetSPN is the Service Principal Name (e.g., "HTTP/server.domain.com").
	TargetSPN string

	// Realm is the Kerberos realm (e.g., "DOMAIN.COM"). If empty, the
	// credentials' domain upper-cased, then the krb5.conf default realm.
	Realm string

	// Krb5ConfPath is the path to krb5.conf.
	Krb5ConfPath string

	// Credentials are the username/password used to obtain a TGT.
	Credentials *Credentials
}

// KerberosProvider implements SecurityProvider with the pure Go krb5 client.
// It logs in lazily on the first Step and reuses the TGT and service ticket
// for later contexts.
type KerberosProvider struct {
	client     *client.Client
	targetSPN  string
	loggedIn   bool
	isComplete bool
}

// NewKerberosProvider loads krb5.conf and prepares a password-based client.
func NewKerberosProvider(cfg KerberosProviderConfig) (*KerberosProvider, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("kerberos: credentials are required")
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, fmt.Errorf("kerberos: %w", err)
	}
	if cfg.TargetSPN == "" {
		return nil, errors.New("kerberos: target SPN is required")
	}

	path := cfg.Krb5ConfPath
	if path == "" {
		path = os.Getenv("KRB5_CONFIG")
	}
	if path == "" {
		path = DefaultKrb5ConfPath
	}
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load krb5.conf from %s: %w", path, err)
	}

	realm := cfg.Realm
	if realm == "" {
		realm = strings.ToUpper(cfg.Credentials.Domain)
	}
	if realm == "" {
		realm = conf.LibDefaults.DefaultRealm
	}
	if realm == "" {
		return nil, errors.New("kerberos: no realm given and krb5.conf has no default_realm")
	}

	// FAST is disabled for compatibility with older KDCs.
	cl := client.NewWithPassword(
		cfg.Credentials.Username,
		realm,
		cfg.Credentials.Password,
		conf,
		client.DisablePAFXFAST(true),
	)

	return &KerberosProvider{
		client:    cl,
		targetSPN: cfg.TargetSPN,
	}, nil
}

// Step performs a GSS-API/SPNEGO step. An empty input yields a new
// NegTokenInit carrying an AP-REQ; a server token after that is the optional
// mutual authentication reply and ends the exchange.
func (p *KerberosProvider) Step(_ context.Context, inputToken []byte) ([]byte, bool, error) {
	if !p.loggedIn {
		if err := p.client.Login(); err != nil {
			return nil, false, fmt.Errorf("kerberos login: %w", err)
		}
		p.loggedIn = true
	}

	if len(inputToken) > 0 {
		if !p.isComplete {
			return nil, false, errors.New("received server token before client authentication completed")
		}
		return nil, false, nil
	}

	tkn, err := spnego.SPNEGOClient(p.client, p.targetSPN).InitSecContext()
	if err != nil {
		return nil, false, fmt.Errorf("init security context for %s: %w", p.targetSPN, err)
	}
	token, err := tkn.Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("marshal token: %w", err)
	}

	p.isComplete = true
	return token, false, nil
}

// Complete returns true once a token has been produced.
func (p *KerberosProvider) Complete() bool {
	return p.isComplete
}

// Close destroys the client's tickets.
func (p *KerberosProvider) Close() error {
	p.client.Destroy()
	return nil
}

// TargetSPN returns the HTTP service principal for a WSMan endpoint URL.
func TargetSPN(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return "HTTP/" + host, nil
}
