package auth

import "context"

// SecurityProvider handles the low-level token exchange behind Negotiate.
//
// # Thread Safety
//
// SecurityProvider implementations are NOT safe for concurrent use.
// The negotiate round tripper serializes calls.
//
// # Authentication Flow
//
//  1. Step(nil) starts a new security context and returns the initial token
//  2. The token is sent with the request
//  3. If the server answers 401 with a challenge, Step(challenge) returns
//     the next token
//  4. Repeat while continueNeeded is true
type SecurityProvider interface {
	// Step processes an input token (challenge) and produces an output token.
	// A nil input restarts the context.
	Step(ctx context.Context, inputToken []byte) (outputToken []byte, continueNeeded bool, err error)

	// Complete returns true if the security context has been established.
	Complete() bool

	// Close releases any resources associated with the context.
	Close() error
}
