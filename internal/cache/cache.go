// Package cache is the typed access layer over the durable message store.
// It is the only component that decides whether a message is already cached.
package cache

import (
	"time"

	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/store"
	"go.uber.org/zap"
)

// createdAtLayout is RFC3339 with fixed millisecond precision so that stored
// timestamps compare lexicographically in chronological order.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Cache provides existence-gated writes and sorted reads over one identity's
// message store.
type Cache struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a cache over an open store.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{db: db, bus: b, logger: logger}
}

// CacheMessages persists every message in the batch that is not already
// cached, tagging each new record with the conversation key and the cache
// time. Individual record failures are logged and skipped; they never abort
// the rest of the batch. The per-conversation sync timestamp is stamped once
// after the batch, however many records were new. Returns the number of
// newly persisted records.
//
// Concurrent calls for the same conversation may race on the existence
// check; that is safe because messages are immutable and the insert is
// conflict-ignored on id.
func (c *Cache) CacheMessages(conversationKey string, msgs []store.Message) (int, error) {
	now := time.Now().UnixMilli()
	newCount := 0

	for i := range msgs {
		m := msgs[i]

		existing, err := c.db.GetMessage(m.ID)
		if err != nil {
			c.logger.Warn("existence check failed, skipping record",
				zap.String("msg_id", m.ID), zap.Error(err))
			continue
		}
		if existing != nil {
			continue
		}

		m.ConversationKey = conversationKey
		m.CreatedAt = normalizeCreatedAt(m.CreatedAt)
		if m.CachedAt == 0 {
			m.CachedAt = now
		}

		inserted, err := c.db.InsertMessage(&m)
		if err != nil {
			c.logger.Warn("failed to persist message, skipping record",
				zap.String("msg_id", m.ID), zap.Error(err))
			continue
		}
		if inserted {
			newCount++
		}
	}

	if err := c.db.SetLastSync(conversationKey, time.Now().UnixMilli()); err != nil {
		return newCount, err
	}

	if newCount > 0 {
		c.logger.Info("cached new messages",
			zap.String("conversation", conversationKey), zap.Int("count", newCount))
		if c.bus != nil {
			c.bus.Publish(bus.Event{
				Kind: bus.KindCacheUpdated,
				Payload: bus.CacheUpdated{
					ConversationKey: conversationKey,
					NewMessages:     newCount,
				},
			})
		}
	}

	return newCount, nil
}

// Messages returns every cached message for a conversation, sorted ascending
// by created_at. An empty conversation yields an empty slice, never an error.
func (c *Cache) Messages(conversationKey string) ([]store.Message, error) {
	return c.db.ListByConversation(conversationKey)
}

// ClearConversation hard-deletes one conversation partition. It returns only
// once the deletion is committed.
func (c *Cache) ClearConversation(conversationKey string) error {
	if err := c.db.DeleteByConversation(conversationKey); err != nil {
		return err
	}
	c.logger.Info("cleared conversation cache", zap.String("conversation", conversationKey))
	return nil
}

// ClearAll hard-deletes every cached message and all sync metadata.
func (c *Cache) ClearAll() error {
	if err := c.db.Clear(); err != nil {
		return err
	}
	c.logger.Info("cleared all cached messages")
	return nil
}

// Stats returns cache-wide diagnostic counters.
func (c *Cache) Stats() (*store.Stats, error) {
	total, err := c.db.MessageCount()
	if err != nil {
		return nil, err
	}
	convs, err := c.db.ConversationCount()
	if err != nil {
		return nil, err
	}
	return &store.Stats{TotalMessages: total, Conversations: convs}, nil
}

// LastSync returns the advisory last-sync timestamp for a conversation.
func (c *Cache) LastSync(conversationKey string) (int64, error) {
	return c.db.LastSync(conversationKey)
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// normalizeCreatedAt rewrites a server timestamp into UTC with fixed
// precision so that TEXT ordering matches chronological ordering. Unparseable
// values are stored verbatim.
func normalizeCreatedAt(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(createdAtLayout)
}
