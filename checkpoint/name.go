// Package checkpoint implements the checkpoint orchestrator itself: name
// validation, drop planning, the per-tree pipeline, and the
// database-wide driver.
package checkpoint

import (
	"fmt"
	"strings"
)

// ReservedPrefix is the literal internal checkpoint name prefix
// applications may never use. A strict prefix match covers every
// generational variant (name.1, name.2, ...).
const ReservedPrefix = "WiredTigerCheckpoint"

// ErrInvalidArgument is the orchestrator's misuse error class.
type ErrInvalidArgument struct{ Msg string }

func (e *ErrInvalidArgument) Error() string { return e.Msg }

func invalidArgf(format string, args ...interface{}) error {
	return &ErrInvalidArgument{Msg: fmt.Sprintf(format, args...)}
}

// ValidateName fails with ErrInvalidArgument iff name begins with
// ReservedPrefix. Empty names are accepted — they denote "use the default
// internal name".
func ValidateName(name string) error {
	if strings.HasPrefix(name, ReservedPrefix) {
		return invalidArgf("the checkpoint name %q is reserved", ReservedPrefix)
	}
	return nil
}
