package config

import "fmt"

// ConfigError é fatal: o processo não sobe. Field é o nome da variável de
// ambiente (ou da fonte) inválida.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}
