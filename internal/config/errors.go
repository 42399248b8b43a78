package config

import (
	"errors"
	"fmt"
)

// ErrStrict is joined into the error returned by Resolve when strict
// validation is enabled and any configuration error was found.
var ErrStrict = errors.New("config: strict validation failed")

// Error is a non-fatal configuration problem: an unknown rule, an unknown
// key, or a value of the wrong type.
type Error struct {
	Key   string // dotted path, e.g. "rules.magic-number.max"
	Rule  string
	Layer string
	Msg   string
}

func (e *Error) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("config: %s: %s", e.Key, e.Msg)
	}
	return fmt.Sprintf("config: %s: %s (set by %s)", e.Key, e.Msg, e.Layer)
}
