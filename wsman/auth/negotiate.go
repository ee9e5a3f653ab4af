package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// maxNegotiateRetries is the maximum number of authentication legs per request.
const maxNegotiateRetries = 5

// NegotiateAuth implements SPNEGO authentication using a pluggable SecurityProvider.
type NegotiateAuth struct {
	provider SecurityProvider
}

// NewNegotiateAuth creates a new Negotiate authenticator.
func NewNegotiateAuth(provider SecurityProvider) *NegotiateAuth {
	return &NegotiateAuth{
		provider: provider,
	}
}

// Name returns the scheme name.
func (a *NegotiateAuth) Name() string {
	return "Negotiate"
}

// Transport wraps the base transport with Negotiate authentication logic.
func (a *NegotiateAuth) Transport(base http.RoundTripper) http.RoundTripper {
	return &negotiateRoundTripper{
		base:     base,
		provider: a.provider,
	}
}

// Close releases the provider.
func (a *NegotiateAuth) Close() error {
	return a.provider.Close()
}

// negotiateRoundTripper sends a fresh initial token with every request, so
// each pooled connection authenticates on its own, and continues the
// exchange while the server keeps challenging.
type negotiateRoundTripper struct {
	mu       sync.Mutex
	base     http.RoundTripper
	provider SecurityProvider
}

func (rt *negotiateRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	clientToken, continueNeeded, err := rt.provider.Step(req.Context(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: negotiate: %v", ErrAuthFailed, err)
	}

	for attempt := 0; attempt < maxNegotiateRetries; attempt++ {
		reqClone := req.Clone(req.Context())
		if bodyBytes != nil {
			reqClone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			reqClone.ContentLength = int64(len(bodyBytes))
		}
		if clientToken != nil {
			reqClone.Header.Set("Authorization", "Negotiate "+base64.StdEncoding.EncodeToString(clientToken))
		}

		resp, err := rt.base.RoundTrip(reqClone)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}

		serverToken, ok := negotiateChallenge(resp.Header.Values("WWW-Authenticate"))
		// A 401 after the provider's final token is a rejection; let the
		// caller see the status.
		if !ok || !continueNeeded {
			return resp, nil
		}
		_ = resp.Body.Close()

		clientToken, continueNeeded, err = rt.provider.Step(req.Context(), serverToken)
		if err != nil {
			return nil, fmt.Errorf("%w: negotiate step: %v", ErrAuthFailed, err)
		}
		if clientToken == nil {
			return nil, fmt.Errorf("%w: server rejected the negotiate token", ErrAuthFailed)
		}
	}

	return nil, fmt.Errorf("%w: negotiate authentication failed after %d attempts", ErrAuthFailed, maxNegotiateRetries)
}

// negotiateChallenge finds a Negotiate challenge and decodes its token, which
// may be absent.
func negotiateChallenge(headers []string) ([]byte, bool) {
	for _, h := range headers {
		scheme, rest, _ := strings.Cut(strings.TrimSpace(h), " ")
		if !strings.EqualFold(scheme, "Negotiate") {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil, true
		}
		token, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, true
		}
		return token, true
	}
	return nil, false
}
