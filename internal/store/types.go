package store

// Message is a cached chat message. Records are append-only: once a message
// id has been persisted its content is never rewritten.
type Message struct {
	ID             string   `json:"_id"`
	SenderID       string   `json:"senderId"`
	ReceiverID     string   `json:"receiverId"`
	Body           string   `json:"message"`
	AttachmentRefs []string `json:"imageFiles,omitempty"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
	ReadAt         string   `json:"readAt,omitempty"`

	// ConversationKey is the other participant's id from the current user's
	// point of view. Attached at cache-write time, never sent by the server.
	ConversationKey string `json:"-"`

	// CachedAt is the unix-ms time of first persistence. Diagnostics only.
	CachedAt int64 `json:"-"`
}

// Stats holds cache-wide diagnostic counters.
type Stats struct {
	TotalMessages int
	Conversations int
}
