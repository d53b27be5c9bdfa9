// Package bot – state.go holds the per-conversation scheduling state.
//
// One ConversationState exists per conversation, created lazily on first
// reference and kept for the process lifetime. Scheduling state is
// deliberately transient: a restart forgets every running loop.
package bot

import (
	"sync"
	"time"
)

// Default loop intervals, applied when a conversation has never been
// reconfigured.
const (
	DefaultBroadcastInterval = 1000 * time.Millisecond
	DefaultRenameInterval    = 700 * time.Millisecond

	// MinBroadcastInterval and MinRenameInterval are the lower clamps
	// applied to user-supplied delays.
	MinBroadcastInterval = 50 * time.Millisecond
	MinRenameInterval    = 100 * time.Millisecond
)

// BroadcastState is the broadcast-loop half of a conversation record.
// Invariant: Active is true iff cancel is non-nil.
type BroadcastState struct {
	Active   bool
	Text     string
	Interval time.Duration

	// cancel stops the running ticker goroutine. Nil when idle.
	cancel func()

	// gen increments on every stop and ticker swap so that a tick already
	// past its select can detect it was superseded and must not send.
	gen uint64
}

// RenameState is the rename-loop half of a conversation record.
// Invariant: Active is true iff timer is non-nil.
type RenameState struct {
	Active   bool
	NamePool []string
	Index    int
	Interval time.Duration

	// timer is the pending chained tick. Nil when idle.
	timer *time.Timer

	// gen increments on every stop and reschedule so that an in-flight
	// tick can detect it was superseded and must not chain.
	gen uint64
}

// ConversationState is the mutable scheduling record for one conversation.
// Each record carries its own lock; concurrent operations on different
// conversations never contend.
type ConversationState struct {
	mu sync.Mutex

	ChatID    string
	Broadcast BroadcastState
	Rename    RenameState
}

// Lock acquires the record's lock.
func (cs *ConversationState) Lock() { cs.mu.Lock() }

// Unlock releases the record's lock.
func (cs *ConversationState) Unlock() { cs.mu.Unlock() }

// StateStore owns one ConversationState per conversation. Records are
// created lazily and never destroyed before process exit.
type StateStore struct {
	mu     sync.Mutex
	states map[string]*ConversationState
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]*ConversationState)}
}

// Get returns the record for a conversation, creating it on first
// reference with the default intervals.
func (s *StateStore) Get(chatID string) *ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs, ok := s.states[chatID]; ok {
		return cs
	}

	cs := &ConversationState{
		ChatID:    chatID,
		Broadcast: BroadcastState{Interval: DefaultBroadcastInterval},
		Rename:    RenameState{Interval: DefaultRenameInterval},
	}
	s.states[chatID] = cs
	return cs
}

// ActiveCounts reports how many broadcast and rename loops are running,
// for the health endpoint.
func (s *StateStore) ActiveCounts() (broadcasts, renames int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cs := range s.states {
		cs.Lock()
		if cs.Broadcast.Active {
			broadcasts++
		}
		if cs.Rename.Active {
			renames++
		}
		cs.Unlock()
	}
	return broadcasts, renames
}
