package status

import (
	"sync"

	"github.com/tchatapp/tchat/internal/bus"
)

// State represents how far a conversation's cache has converged with the
// server. There is no error state: a failed sync leaves the conversation
// where it was, and every subsequent read is the retry.
type State string

const (
	// Empty means nothing has ever been cached for the conversation.
	Empty State = "EMPTY"
	// PartiallySynced means cached data exists but no full reconciliation
	// has completed this session.
	PartiallySynced State = "PARTIALLY_SYNCED"
	// Synced means a full fetch-and-merge completed this session.
	Synced State = "SYNCED"
)

// rank orders states so transitions only ever move forward.
var rank = map[State]int{Empty: 0, PartiallySynced: 1, Synced: 2}

// Tracker tracks per-conversation sync states and publishes transitions.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
	bus    *bus.Bus
}

// NewTracker creates a tracker with every conversation implicitly Empty.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		states: make(map[string]State),
		bus:    b,
	}
}

// Current returns the state for a conversation.
func (t *Tracker) Current(conversationKey string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[conversationKey]; ok {
		return s
	}
	return Empty
}

// Advance moves a conversation to the given state if that is forward
// progress; regressions are ignored. Returns the resulting state.
func (t *Tracker) Advance(conversationKey string, to State) State {
	t.mu.Lock()
	from, ok := t.states[conversationKey]
	if !ok {
		from = Empty
	}
	if rank[to] <= rank[from] {
		t.mu.Unlock()
		return from
	}
	t.states[conversationKey] = to
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(bus.Event{
			Kind: bus.KindSyncStateChanged,
			Payload: StateChange{
				ConversationKey: conversationKey,
				From:            from,
				To:              to,
			},
		})
	}
	return to
}

// Reset forgets a conversation's state (used when its partition is cleared).
func (t *Tracker) Reset(conversationKey string) {
	t.mu.Lock()
	delete(t.states, conversationKey)
	t.mu.Unlock()
}

// StateChange is the payload for sync.state_changed events.
type StateChange struct {
	ConversationKey string
	From            State
	To              State
}
