package sync

import (
	"slices"
	"strings"
	"time"

	"github.com/tchatapp/tchat/internal/store"
)

// Delta returns the subset of fetched whose ids are not present in cached,
// in server-given order. This is a pure set difference by primary key: no
// content comparison, no timestamp comparison. Because the server is always
// asked for the entire conversation history, this captures every message the
// client has not yet seen, including ones inserted out of chronological
// order. Repeated ids within the fetched batch are kept once.
func Delta(cached, fetched []store.Message) []store.Message {
	seen := make(map[string]struct{}, len(cached))
	for _, m := range cached {
		seen[m.ID] = struct{}{}
	}

	var fresh []store.Message
	for _, m := range fetched {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	return fresh
}

// sortByCreatedAt orders messages ascending by created_at. Used only on the
// degraded path where the cache cannot do the ordering.
func sortByCreatedAt(msgs []store.Message) {
	// Stable so equal timestamps keep server order.
	slices.SortStableFunc(msgs, func(a, b store.Message) int {
		ta, errA := time.Parse(time.RFC3339Nano, a.CreatedAt)
		tb, errB := time.Parse(time.RFC3339Nano, b.CreatedAt)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(a.CreatedAt, b.CreatedAt)
	})
}
