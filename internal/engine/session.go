package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/voltage-labs/contractctl/internal/ledger"
)

// Session is the state of a single invocation: the in-memory ledger plus the identity
// and network it runs as. It is owned by one Run at a time.
type Session struct {
	ID        string
	Initiator string
	Network   string
	State     *ledger.State
}

// NewSession wraps a loaded ledger state.
func NewSession(who ledger.Initiator, state *ledger.State) (*Session, error) {
	if state == nil {
		return nil, fmt.Errorf("session requires a loaded ledger state")
	}
	return &Session{
		ID:        uuid.NewString(),
		Initiator: who.Address,
		Network:   who.Network,
		State:     state,
	}, nil
}
