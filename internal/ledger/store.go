package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voltage-labs/contractctl/internal/logging"
)

// Backend reads and writes the serialized ledger snapshot.
type Backend interface {
	// Read returns the persisted snapshot, or ErrNoSnapshot when nothing was written yet.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the persisted snapshot.
	Write(ctx context.Context, data []byte) error
	// Describe returns a human-readable location for logs and errors.
	Describe() string
}

// Initiator identifies who performs a run and against which network.
type Initiator struct {
	Address string
	Network string
}

// Store loads and flushes ledger state through a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore constructs a Store over backend.
func NewStore(backend Backend, logger *slog.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("ledger backend is nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Describe returns the backend location.
func (s *Store) Describe() string {
	return s.backend.Describe()
}

// Load reads the persisted ledger. A missing snapshot is a first run and yields a fresh
// state seeded with metadata; an unparsable snapshot yields a *CorruptError.
func (s *Store) Load(ctx context.Context, who Initiator) (*State, error) {
	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		s.logger.Info("no ledger found, starting a fresh deployment", "ledger", s.backend.Describe())
		return NewState(s.freshMeta(who)), nil
	}
	if err != nil {
		return nil, err
	}

	state := &State{}
	if err := state.UnmarshalJSON(data); err != nil {
		return nil, &CorruptError{Source: s.backend.Describe(), Err: err}
	}
	if state.Meta.IsZero() {
		state.Meta = s.freshMeta(who)
		state.dirty = true
	}

	s.logger.Info("ledger loaded",
		"ledger", s.backend.Describe(),
		"records", len(state.records),
		"initiator", state.Meta.Initiator,
		"createdAt", state.Meta.CreatedAt.Format(time.RFC3339),
	)
	return state, nil
}

// Flush serializes state and overwrites the persisted snapshot.
func (s *Store) Flush(ctx context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("flush ledger: state is nil")
	}
	data, err := state.Encode()
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return err
	}
	state.dirty = false
	s.logger.Debug("ledger flushed", "ledger", s.backend.Describe(), "records", len(state.records))
	return nil
}

func (s *Store) freshMeta(who Initiator) Meta {
	return Meta{
		Initiator: who.Address,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		Network:   who.Network,
	}
}

// MemoryBackend keeps the snapshot in memory. It backs dry runs and tests.
type MemoryBackend struct {
	Data   []byte
	Writes int
}

// Read returns a copy of the stored snapshot.
func (m *MemoryBackend) Read(_ context.Context) ([]byte, error) {
	if m.Data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.Data...), nil
}

// Write replaces the stored snapshot.
func (m *MemoryBackend) Write(_ context.Context, data []byte) error {
	m.Data = append([]byte(nil), data...)
	m.Writes++
	return nil
}

// Describe implements Backend.
func (m *MemoryBackend) Describe() string {
	return "memory"
}
