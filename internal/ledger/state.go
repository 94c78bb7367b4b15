// Package ledger persists which contracts have been deployed and at which address.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MetaKey is the reserved top-level key holding run provenance. No record may use it.
const MetaKey = "_meta"

// Meta records the provenance of the first run that created the ledger.
// It is written once and never refreshed by later runs.
type Meta struct {
	Initiator string    `json:"initiator"`
	CreatedAt time.Time `json:"createdAt"`
	Network   string    `json:"network,omitempty"`
}

// IsZero reports whether the metadata was never written.
func (m Meta) IsZero() bool {
	return m.Initiator == "" && m.CreatedAt.IsZero() && m.Network == ""
}

// State is the in-memory ledger snapshot: metadata plus step name -> deployed address.
type State struct {
	Meta    Meta
	records map[string]string
	dirty   bool
}

// NewState returns an empty ledger with the given metadata.
func NewState(meta Meta) *State {
	return &State{Meta: meta, records: make(map[string]string)}
}

// Has reports whether name has a recorded, non-empty address.
func (s *State) Has(name string) bool {
	if s == nil {
		return false
	}
	return strings.TrimSpace(s.records[name]) != ""
}

// Get returns the recorded address for name. Callers should check Has first.
func (s *State) Get(name string) (string, error) {
	if !s.Has(name) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.records[name], nil
}

// Put records address for name, replacing any previous value.
// The metadata key is refused with ErrReservedName.
func (s *State) Put(name, address string) error {
	if name == MetaKey {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	if s.records == nil {
		s.records = make(map[string]string)
	}
	s.records[name] = address
	s.dirty = true
	return nil
}

// Dirty reports whether the state changed since it was loaded.
func (s *State) Dirty() bool {
	return s != nil && s.dirty
}

// Names returns the recorded step names in lexical order.
func (s *State) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns a copy of all recorded entries.
func (s *State) Records() map[string]string {
	out := make(map[string]string, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the ledger as a flat object with the reserved _meta key.
func (s *State) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.records)+1)
	out[MetaKey] = s.Meta
	for name, addr := range s.records {
		out[name] = addr
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the flat ledger object. Every entry other than _meta must be a string.
func (s *State) UnmarshalJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty document")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("document is null")
	}

	records := make(map[string]string, len(raw))
	var meta Meta
	for key, value := range raw {
		if key == MetaKey {
			if err := json.Unmarshal(value, &meta); err != nil {
				return fmt.Errorf("decode %s: %w", MetaKey, err)
			}
			continue
		}
		var addr string
		if err := json.Unmarshal(value, &addr); err != nil {
			return fmt.Errorf("record %q is not an address string: %w", key, err)
		}
		records[key] = addr
	}

	s.Meta = meta
	s.records = records
	s.dirty = false
	return nil
}

// Encode renders the ledger as indented JSON with a trailing newline.
func (s *State) Encode() ([]byte, error) {
	compact, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
