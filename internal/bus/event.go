package bus

import "time"

// Event kinds published by the cache subsystem and its collaborators.
const (
	// KindCacheUpdated is published after a cache batch persisted at least
	// one previously unseen message. Payload: CacheUpdated.
	KindCacheUpdated = "cache.updated"

	// KindSyncStateChanged is published when a conversation's sync state
	// advances. Payload: status.StateChange.
	KindSyncStateChanged = "sync.state_changed"

	// KindSignalMessage is published when the realtime channel signals new
	// activity from a peer. Payload: SignalMessage.
	KindSignalMessage = "signal.message"

	// KindAuthExpired is published when the server rejects the session
	// token. The lifecycle manager reacts by purging the identity's
	// partition. No payload.
	KindAuthExpired = "auth.expired"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// CacheUpdated is the payload for cache.updated events.
type CacheUpdated struct {
	ConversationKey string
	NewMessages     int
}

// SignalMessage is the payload for signal.message events.
type SignalMessage struct {
	SenderID string
}
