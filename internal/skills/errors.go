package skills

import "fmt"

// ConfigError indicates the skill pattern library is malformed. It is fatal
// at startup: a broken library must not silently degrade to zero-skill output.
type ConfigError struct {
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("skill library config error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("skill library config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
