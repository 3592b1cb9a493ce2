package converter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadable is returned when a data file exists but cannot be read.
	ErrUnreadable = errors.New("unreadable file")
	// ErrMalformed is returned when a data file is not valid UTF-8.
	ErrMalformed = errors.New("malformed UTF-8")
	// ErrEmptyRuleSet is returned when a root file expands to zero rules.
	ErrEmptyRuleSet = errors.New("empty rule set")
)

// LoadError records the file that aborted a load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
