// Package transport provides the HTTP/TLS transport WSMan messages travel on.
//
// The transport layer handles:
//   - HTTP/HTTPS connections and TLS trust (system roots, a CA bundle, or none)
//   - Authentication, by wrapping the round tripper with an Authenticator
//   - Mapping HTTP failures onto typed errors the callers classify
package transport
