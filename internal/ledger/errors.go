package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by State.Get when no address is recorded for a step.
	ErrNotFound = errors.New("ledger record not found")

	// ErrNoSnapshot is returned by a Backend when nothing has been persisted yet.
	ErrNoSnapshot = errors.New("ledger snapshot does not exist")

	// ErrReservedName is returned by State.Put for a name that collides with ledger metadata.
	ErrReservedName = errors.New("name is reserved for ledger metadata")
)

// CorruptError reports a persisted ledger that exists but cannot be parsed.
// It is fatal: starting from an empty ledger could redeploy contracts that already exist.
type CorruptError struct {
	// Source describes where the snapshot was read from.
	Source string
	Err    error
}

func (e *CorruptError) Error() string {
	if e == nil {
		return "ledger is corrupt"
	}
	return fmt.Sprintf("ledger %s is corrupt: %v", e.Source, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err indicates a corrupt persisted ledger.
func IsCorrupt(err error) bool {
	var target *CorruptError
	return errors.As(err, &target)
}

// BackendError wraps a failure of the persistence layer itself (I/O, network, database).
type BackendError struct {
	Op      string
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s ledger via %s: %v", e.Op, e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
