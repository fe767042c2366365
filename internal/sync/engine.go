// Package sync owns the merge workflow between the server's view of a
// conversation and the local cache: fetch, diff, persist, return.
package sync

import (
	"context"
	"fmt"

	"github.com/tchatapp/tchat/internal/cache"
	"github.com/tchatapp/tchat/internal/status"
	"github.com/tchatapp/tchat/internal/store"
	"go.uber.org/zap"
)

// Fetcher retrieves the server's current full view of a conversation.
type Fetcher interface {
	FetchConversation(ctx context.Context, peerID string) ([]store.Message, error)
}

// Engine exposes the two read strategies over the cache and a fetch
// collaborator. A nil cache means the durable store could not be opened; the
// engine then degrades to direct server reads instead of failing callers.
type Engine struct {
	cache   *cache.Cache
	fetcher Fetcher
	tracker *status.Tracker
	logger  *zap.Logger
}

// NewEngine creates a sync engine. cache may be nil (store unavailable).
func NewEngine(c *cache.Cache, f Fetcher, tr *status.Tracker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cache: c, fetcher: f, tracker: tr, logger: logger}
}

// GetMessages is the fetch-then-merge strategy: block on the server round
// trip, persist whatever is new, and return the full merged conversation.
// Fetch errors surface to the caller; cache errors degrade to the server's
// view.
func (e *Engine) GetMessages(ctx context.Context, conversationKey string) ([]store.Message, error) {
	fetched, err := e.fetcher.FetchConversation(ctx, conversationKey)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation %s: %w", conversationKey, err)
	}

	if e.cache == nil {
		sortByCreatedAt(fetched)
		return fetched, nil
	}

	if err := e.merge(conversationKey, fetched); err != nil {
		e.logger.Warn("merge failed, serving server view",
			zap.String("conversation", conversationKey), zap.Error(err))
		sortByCreatedAt(fetched)
		return fetched, nil
	}

	merged, err := e.cache.Messages(conversationKey)
	if err != nil {
		e.logger.Warn("cache read failed, serving server view",
			zap.String("conversation", conversationKey), zap.Error(err))
		sortByCreatedAt(fetched)
		return fetched, nil
	}
	return merged, nil
}

// GetMessagesCacheFirst is the cache-first strategy: return whatever is
// cached right now (possibly empty, possibly stale) and reconcile with the
// server in a detached background task. Background failures are logged and
// swallowed; callers observe new messages through cache.updated events or a
// subsequent read.
func (e *Engine) GetMessagesCacheFirst(ctx context.Context, conversationKey string) ([]store.Message, error) {
	var cached []store.Message
	if e.cache != nil {
		var err error
		cached, err = e.cache.Messages(conversationKey)
		if err != nil {
			e.logger.Warn("cache read failed, returning empty",
				zap.String("conversation", conversationKey), zap.Error(err))
			cached = nil
		}
		if len(cached) > 0 && e.tracker != nil {
			e.tracker.Advance(conversationKey, status.PartiallySynced)
		}

		// Detached on purpose: the task outlives the caller's context, is
		// never awaited, and writes only to the idempotent store. A task
		// that never completes, or completes twice, is harmless.
		go e.reconcile(context.Background(), conversationKey)
	}
	return cached, nil
}

// ClearConversation drops one conversation partition and forgets its sync
// state.
func (e *Engine) ClearConversation(conversationKey string) error {
	if e.cache == nil {
		return nil
	}
	if err := e.cache.ClearConversation(conversationKey); err != nil {
		return err
	}
	if e.tracker != nil {
		e.tracker.Reset(conversationKey)
	}
	return nil
}

func (e *Engine) reconcile(ctx context.Context, conversationKey string) {
	fetched, err := e.fetcher.FetchConversation(ctx, conversationKey)
	if err != nil {
		e.logger.Warn("background sync failed",
			zap.String("conversation", conversationKey), zap.Error(err))
		return
	}
	if err := e.merge(conversationKey, fetched); err != nil {
		e.logger.Warn("background merge failed",
			zap.String("conversation", conversationKey), zap.Error(err))
	}
}

// merge diffs the fetched batch against the cache and persists the new
// records. The batch is always handed to the cache layer, even when the
// delta is empty, so the advisory sync timestamp gets stamped.
func (e *Engine) merge(conversationKey string, fetched []store.Message) error {
	cached, err := e.cache.Messages(conversationKey)
	if err != nil {
		return err
	}

	fresh := Delta(cached, fetched)
	if _, err := e.cache.CacheMessages(conversationKey, fresh); err != nil {
		return err
	}

	if e.tracker != nil {
		e.tracker.Advance(conversationKey, status.Synced)
	}
	return nil
}
