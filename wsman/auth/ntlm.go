package auth

import (
	"net/http"

	"github.com/Azure/go-ntlmssp"
)

// NTLMAuth implements NTLM authentication.
type NTLMAuth struct {
	creds Credentials
}

// NewNTLMAuth creates a new NTLM authentication handler.
func NewNTLMAuth(creds Credentials) *NTLMAuth {
	return &NTLMAuth{creds: creds}
}

// Name returns the authentication scheme name.
func (a *NTLMAuth) Name() string {
	return "NTLM"
}

// Transport wraps an http.RoundTripper with NTLM authentication.
// Uses github.com/Azure/go-ntlmssp for the NTLM handshake.
func (a *NTLMAuth) Transport(base http.RoundTripper) http.RoundTripper {
	return &credentialsRoundTripper{
		creds: a.creds,
		base:  ntlmssp.Negotiator{RoundTripper: base},
	}
}

// credentialsRoundTripper hands the credentials to ntlmssp.Negotiator, which
// reads them from the request's basic auth and strips them before sending.
type credentialsRoundTripper struct {
	creds Credentials
	base  http.RoundTripper
}

func (t *credentialsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	user := t.creds.Username
	if t.creds.Domain != "" {
		user = t.creds.Domain + `\` + user
	}
	reqCopy := req.Clone(req.Context())
	reqCopy.SetBasicAuth(user, t.creds.Password)
	return t.base.RoundTrip(reqCopy)
}
