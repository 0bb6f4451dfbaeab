package config

import (
	"errors"
	"fmt"
)

// ConfigError indicates invalid or unusable configuration input, such as a
// malformed connection string or an unreadable config file. It is always
// fatal before any connection attempt is made.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %s", e.Field, e.Message)
}

// IsConfigError reports whether err (or any error in its chain) is a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
