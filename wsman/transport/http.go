package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

var (
	// ErrUnauthorized is returned when the server responds with 401 Unauthorized.
	// Use errors.Is(err, ErrUnauthorized) to check for authentication failures.
	ErrUnauthorized = errors.New("transport: authentication failed (401 Unauthorized)")

	// ErrForbidden is returned when the server responds with 403 Forbidden.
	ErrForbidden = errors.New("transport: access denied (403 Forbidden)")
)

// StatusError is returned for any other HTTP status of 400 or above.
// Body holds the response so callers can look for a SOAP fault in it.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	preview := string(e.Body)
	if len(preview) > 3000 {
		preview = preview[:3000] + "..."
	}
	if preview == "" {
		return fmt.Sprintf("transport: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("transport: HTTP %d: %s", e.StatusCode, preview)
}

// RequestError is returned when a request could not be built, sent, or
// answered: DNS, dial, TLS handshake, timeouts and transport configuration.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Authenticator wraps a round tripper with an authentication scheme.
// The types in package auth implement it.
type Authenticator interface {
	Transport(base http.RoundTripper) http.RoundTripper
}

const (
	// ContentTypeSOAP is the content type for SOAP 1.2 messages.
	ContentTypeSOAP = "application/soap+xml;charset=UTF-8"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// defaultBufferSize is the initial size for pooled buffers.
	defaultBufferSize = 32 * 1024 // 32KB
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, defaultBufferSize))
	},
}

// readAllPooled reads from r using a pooled buffer and returns a copy of the data.
func readAllPooled(r io.Reader) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// HTTPTransport handles HTTP/HTTPS communication for WSMan.
type HTTPTransport struct {
	client *http.Client
	auth   Authenticator
	err    error
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// NewHTTPTransport creates a new HTTP transport with the given options.
// Options that fail (an unreadable CA bundle) are reported by Err and by
// every Post.
func NewHTTPTransport(opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					// TLS 1.2 for older Windows servers; 1.3 is negotiated when offered.
					MinVersion: tls.VersionTLS12,
				},
				// NTLM and Negotiate authenticate the connection, not the request.
				DisableKeepAlives:   false,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.auth != nil {
		t.client.Transport = t.auth.Transport(t.client.Transport)
	}

	return t
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// WithInsecureSkipVerify configures TLS to skip certificate verification.
// WARNING: Only use this for testing. Never use in production.
func WithInsecureSkipVerify(skip bool) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.tlsConfig().InsecureSkipVerify = skip
	}
}

// WithTLSConfig sets a custom TLS configuration.
// NOTE: MinVersion is enforced to be at least TLS 1.2 for security.
func WithTLSConfig(cfg *tls.Config) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if cfg.MinVersion < tls.VersionTLS12 {
			cfg.MinVersion = tls.VersionTLS12
		}
		t.ensureHTTPTransport().TLSClientConfig = cfg
	}
}

// WithCACertFile trusts the PEM certificates in path instead of the system roots.
// An empty path is ignored.
func WithCACertFile(path string) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if path == "" {
			return
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			t.err = &RequestError{Op: "load CA bundle", Err: err}
			return
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			t.err = &RequestError{Op: "load CA bundle", Err: fmt.Errorf("no certificates found in %s", path)}
			return
		}
		t.tlsConfig().RootCAs = pool
	}
}

// WithProxy sets the proxy URL. "direct" disables proxying; an empty string
// keeps the environment proxy settings.
func WithProxy(proxyURL string) HTTPTransportOption {
	return func(t *HTTPTransport) {
		tr := t.ensureHTTPTransport()
		switch proxyURL {
		case "":
			tr.Proxy = http.ProxyFromEnvironment
		case "direct":
			tr.Proxy = nil
		default:
			u, err := url.Parse(proxyURL)
			if err != nil {
				t.err = &RequestError{Op: "parse proxy URL", Err: err}
				return
			}
			tr.Proxy = http.ProxyURL(u)
		}
	}
}

// WithAuthenticator wraps the transport with an authentication scheme.
// It is applied after every other option.
func WithAuthenticator(a Authenticator) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.auth = a
	}
}

func (t *HTTPTransport) tlsConfig() *tls.Config {
	tr := t.ensureHTTPTransport()
	if tr.TLSClientConfig == nil {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return tr.TLSClientConfig
}

// ensureHTTPTransport ensures the client has an *http.Transport.
func (t *HTTPTransport) ensureHTTPTransport() *http.Transport {
	transport, ok := t.client.Transport.(*http.Transport)
	if !ok {
		transport = &http.Transport{Proxy: http.ProxyFromEnvironment}
		t.client.Transport = transport
	}
	return transport
}

// Err reports an option that failed to apply.
func (t *HTTPTransport) Err() error {
	return t.err
}

// Post sends a SOAP request and returns the response body.
func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", ContentTypeSOAP)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &RequestError{Op: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := readAllPooled(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: "read response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrForbidden
	case resp.StatusCode >= 400:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return respBody, nil
}

// Client returns the underlying HTTP client for advanced configuration.
func (t *HTTPTransport) Client() *http.Client {
	return t.client
}

// CloseIdleConnections closes any idle connections in the transport.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}
