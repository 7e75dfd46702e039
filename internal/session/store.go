// Package session tracks per-session mutable metadata and detects changes.
//
// The store holds a small field-to-value mapping for each live session.
// Updates are diffed field by field against the stored state; a genuine
// value change emits the event mapped to that field. The store knows
// nothing about hooks: it is handed the field-to-event mapping and an emit
// callback at construction.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrSessionNotFound is returned when an update targets a session that
	// was never registered. Updates never create sessions implicitly.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrSessionExists is returned when SetInitial is called for a session
	// that is already registered.
	ErrSessionExists = errors.New("session: already registered")
)

// Metadata is a session's field-to-value mapping.
type Metadata map[string]string

// Change is the payload emitted for one changed field.
type Change struct {
	SessionID string `json:"sessionId"`
	Field     string `json:"field"`
	OldState  string `json:"oldState"`
	NewState  string `json:"newState"`
}

// EmitFunc receives the event for one changed field.
type EmitFunc func(ctx context.Context, event string, change Change)

type sessionState struct {
	mu     sync.Mutex // serializes diff-and-emit per session
	fields map[string]string
}

// Store is the session metadata store. Updates for one session are
// serialized; different sessions proceed independently.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionState
	fieldEvents map[string]string
	emit        EmitFunc
}

// NewStore creates a store. fieldEvents maps metadata field names to the
// event emitted when that field changes; emit may be nil to disable
// emission (diffing still happens).
func NewStore(fieldEvents map[string]string, emit EmitFunc) *Store {
	return &Store{
		sessions:    make(map[string]*sessionState),
		fieldEvents: fieldEvents,
		emit:        emit,
	}
}

// SetInitial registers a session's starting state without emitting any
// events. Registering an already-known session is rejected with
// ErrSessionExists.
func (s *Store) SetInitial(sessionID string, metadata Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return ErrSessionExists
	}

	fields := make(map[string]string, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}
	s.sessions[sessionID] = &sessionState{fields: fields}
	return nil
}

// Update merges partial over the stored state field by field. For each
// field whose value actually changed (old != new, including a previously
// unset field), the mapped event is emitted with the old and new values and
// appended to the returned list. Setting a field to its current value is a
// no-op. Fields are processed in sorted name order so the returned list is
// deterministic.
func (s *Store) Update(ctx context.Context, sessionID string, partial Metadata) ([]string, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	fields := make([]string, 0, len(partial))
	for field := range partial {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var emitted []string
	for _, field := range fields {
		newValue := partial[field]
		oldValue := state.fields[field]
		if oldValue == newValue {
			continue
		}
		state.fields[field] = newValue

		event, mapped := s.fieldEvents[field]
		if !mapped {
			continue
		}
		if s.emit != nil {
			s.emit(ctx, event, Change{
				SessionID: sessionID,
				Field:     field,
				OldState:  oldValue,
				NewState:  newValue,
			})
		}
		emitted = append(emitted, event)
	}

	return emitted, nil
}

// Get returns a copy of a session's current metadata.
func (s *Store) Get(sessionID string) (Metadata, bool) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	out := make(Metadata, len(state.fields))
	for k, v := range state.fields {
		out[k] = v
	}
	return out, true
}

// Remove forgets a session and reports whether it was registered. Removing
// an unknown session is a no-op.
func (s *Store) Remove(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}
