package session

import (
	"errors"
	"fmt"
)

// ConnectionError indicates that dialing the server or negotiating TLS
// failed. It is fatal: the tool makes no reconnect attempts.
type ConnectionError struct {
	Addr    string
	Message string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %s", e.Addr, e.Message)
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// AuthError indicates that no supported authentication mechanism was
// available or that the server rejected the credentials.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ProtocolError indicates a failed protocol command, or an id-scoped
// operation issued against a stale mailbox handle. It is fatal for the
// caller, propagated, and never retried: mail mutation is non-idempotent,
// so blind replay could duplicate or lose messages.
type ProtocolError struct {
	Op      string
	Mailbox string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Mailbox == "" {
		return fmt.Sprintf("protocol error (%s): %s", e.Op, e.Message)
	}
	return fmt.Sprintf("protocol error (%s %s): %s", e.Op, e.Mailbox, e.Message)
}

// IsProtocolError reports whether err (or any error in its chain) is a
// ProtocolError.
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}
