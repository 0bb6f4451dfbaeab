package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Default IMAP ports, used when a connection string names no port.
const (
	DefaultPortTLS   = 993
	DefaultPortPlain = 143
)

// ConnectionDescriptor identifies one IMAP account endpoint. It is immutable
// once parsed; a zero port stands for the protocol default.
type ConnectionDescriptor struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// Addr returns the host:port dial address, substituting the protocol
// default port (993 with TLS, 143 without) when none was given.
func (d ConnectionDescriptor) Addr() string {
	port := d.Port
	if port == 0 {
		if d.TLS {
			port = DefaultPortTLS
		} else {
			port = DefaultPortPlain
		}
	}
	return d.Host + ":" + strconv.Itoa(port)
}

// ParseConnectionString parses "USER[:PASSWORD]@HOST[:PORT]" into a
// ConnectionDescriptor. The last '@' separates the credential part from the
// host part, so usernames may themselves contain '@'; each side is then
// split at its last ':'. A missing password stays empty for the caller to
// resolve via keyring or prompt.
func ParseConnectionString(connect string, tls bool) (ConnectionDescriptor, error) {
	at := strings.LastIndex(connect, "@")
	if at < 0 {
		return ConnectionDescriptor{}, &ConfigError{
			Field: "connect",
			Message: fmt.Sprintf(
				"malformed connection string %q: expected USER[:PASSWORD]@HOST[:PORT]",
				connect,
			),
		}
	}

	credentialPart := connect[:at]
	hostPart := connect[at+1:]

	desc := ConnectionDescriptor{TLS: tls}

	if colon := strings.LastIndex(hostPart, ":"); colon >= 0 {
		desc.Host = hostPart[:colon]
		port, err := strconv.Atoi(hostPart[colon+1:])
		if err != nil {
			return ConnectionDescriptor{}, &ConfigError{
				Field:   "connect",
				Message: fmt.Sprintf("invalid port %q", hostPart[colon+1:]),
			}
		}
		desc.Port = port
	} else {
		desc.Host = hostPart
	}
	if desc.Host == "" {
		return ConnectionDescriptor{}, &ConfigError{
			Field:   "connect",
			Message: "cannot deduce host",
		}
	}

	if colon := strings.LastIndex(credentialPart, ":"); colon >= 0 {
		desc.Username = credentialPart[:colon]
		desc.Password = credentialPart[colon+1:]
	} else {
		desc.Username = credentialPart
	}
	if desc.Username == "" {
		return ConnectionDescriptor{}, &ConfigError{
			Field:   "connect",
			Message: "cannot deduce user",
		}
	}

	return desc, nil
}
