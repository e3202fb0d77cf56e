package history

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// State is the lifecycle slot a record occupies for its owning entity.
type State string

const (
	StateCurrent State = "current"
	StateLast    State = "last"
	StateReset   State = "reset"
)

// Kind distinguishes the session families that share the store.
type Kind string

const (
	KindChat       Kind = "chat"
	KindSplitTest  Kind = "splitTest"
	KindEvaluation Kind = "evaluation"
)

// Record is one reconciled history entry. The store keeps at most one
// authoritative record per (EntityID, State) key; collisions are resolved by
// CreatedAt, later wins, incoming wins ties.
type Record struct {
	ID          string          `json:"id"`
	EntityID    string          `json:"entity_id"`
	Kind        Kind            `json:"kind"`
	State       State           `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	WasReset    bool            `json:"was_reset,omitempty"`
	WasRestored bool            `json:"was_restored,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

var (
	// ErrInvalidRecord is returned when a record misses a key field.
	ErrInvalidRecord = errors.New("history: record needs entity id, state and created_at")

	// ErrRecordNotFound is returned when no record occupies the requested key.
	ErrRecordNotFound = errors.New("history: record not found")
)

// Validate checks the fields that form the reconciliation key.
func (r *Record) Validate() error {
	if r == nil {
		return ErrInvalidRecord
	}
	if strings.TrimSpace(r.EntityID) == "" || r.CreatedAt.IsZero() {
		return ErrInvalidRecord
	}
	switch r.State {
	case StateCurrent, StateLast, StateReset:
	default:
		return ErrInvalidRecord
	}
	return nil
}

// Supersedes reports whether r wins a key collision against existing.
// Later CreatedAt wins; the incoming record wins an exact tie.
func (r *Record) Supersedes(existing *Record) bool {
	if existing == nil {
		return true
	}
	return !r.CreatedAt.Before(existing.CreatedAt)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Payload = append(json.RawMessage(nil), r.Payload...)
	return &out
}
