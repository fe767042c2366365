package cache

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/store"
)

func testCache(t *testing.T) (*Cache, *bus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	b := bus.New()
	return New(db, b, nil), b
}

func msg(id, createdAt string) store.Message {
	return store.Message{ID: id, SenderID: "peer", ReceiverID: "self", Body: "body-" + id, CreatedAt: createdAt}
}

func TestCacheMessagesIdempotent(t *testing.T) {
	c, _ := testCache(t)

	m := msg("m1", "2024-01-01T00:00:00Z")
	n, err := c.CacheMessages("peer", []store.Message{m})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("first batch cached %d, want 1", n)
	}

	n, err = c.CacheMessages("peer", []store.Message{m})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second batch cached %d, want 0", n)
	}

	got, err := c.Messages("peer")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want exactly 1", len(got))
	}
	if got[0].CachedAt == 0 {
		t.Error("cached_at not assigned")
	}
	if got[0].ConversationKey != "peer" {
		t.Errorf("conversation key = %q, want peer", got[0].ConversationKey)
	}
}

func TestSortInvariant(t *testing.T) {
	c, _ := testCache(t)

	// Insert out of chronological order, including a sub-second timestamp.
	batch := []store.Message{
		msg("m3", "2024-01-03T00:00:00Z"),
		msg("m1", "2024-01-01T00:00:00.500Z"),
		msg("m2", "2024-01-02T00:00:00Z"),
		msg("m0", "2024-01-01T00:00:00Z"),
	}
	if _, err := c.CacheMessages("peer", batch); err != nil {
		t.Fatal(err)
	}

	got, err := c.Messages("peer")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"m0", "m1", "m2", "m3"}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestPartitionIsolation(t *testing.T) {
	c, _ := testCache(t)

	if _, err := c.CacheMessages("A", []store.Message{msg("m1", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CacheMessages("B", []store.Message{msg("m2", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}

	got, err := c.Messages("B")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "m2" {
		t.Errorf("partition B = %v, want only m2", got)
	}
}

func TestEmptyConversation(t *testing.T) {
	c, _ := testCache(t)
	got, err := c.Messages("nobody")
	if err != nil {
		t.Fatalf("Messages() on empty conversation error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestConcurrentCacheSameMessage(t *testing.T) {
	c, _ := testCache(t)

	m := msg("m1", "2024-01-01T00:00:00Z")
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.CacheMessages("peer", []store.Message{m}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent CacheMessages error: %v", err)
	}

	got, err := c.Messages("peer")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("final count = %d, want 1", len(got))
	}
}

func TestSyncMetadataStampedPerBatch(t *testing.T) {
	c, _ := testCache(t)

	before, err := c.LastSync("peer")
	if err != nil {
		t.Fatal(err)
	}
	if before != 0 {
		t.Fatalf("last sync before any batch = %d, want 0", before)
	}

	// Even an all-duplicates batch stamps the sync time.
	if _, err := c.CacheMessages("peer", []store.Message{msg("m1", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CacheMessages("peer", []store.Message{msg("m1", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}

	after, err := c.LastSync("peer")
	if err != nil {
		t.Fatal(err)
	}
	if after == 0 {
		t.Error("last sync not stamped")
	}
}

func TestCacheUpdatedEvent(t *testing.T) {
	c, b := testCache(t)

	ch, unsub := b.Subscribe("cache.", 10)
	defer unsub()

	if _, err := c.CacheMessages("peer", []store.Message{msg("m1", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		payload, ok := evt.Payload.(bus.CacheUpdated)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if payload.ConversationKey != "peer" || payload.NewMessages != 1 {
			t.Errorf("payload = %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cache.updated")
	}

	// A no-op batch publishes nothing.
	if _, err := c.CacheMessages("peer", []store.Message{msg("m1", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for duplicate batch: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClearConversationAndAll(t *testing.T) {
	c, _ := testCache(t)

	if _, err := c.CacheMessages("A", []store.Message{msg("m1", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CacheMessages("B", []store.Message{msg("m2", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}

	if err := c.ClearConversation("A"); err != nil {
		t.Fatal(err)
	}
	got, _ := c.Messages("A")
	if len(got) != 0 {
		t.Errorf("partition A not cleared: %v", got)
	}
	got, _ = c.Messages("B")
	if len(got) != 1 {
		t.Errorf("partition B lost data: %v", got)
	}

	if err := c.ClearAll(); err != nil {
		t.Fatal(err)
	}
	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalMessages != 0 {
		t.Errorf("total after ClearAll = %d, want 0", stats.TotalMessages)
	}
}

func TestStats(t *testing.T) {
	c, _ := testCache(t)

	if _, err := c.CacheMessages("A", []store.Message{msg("m1", "2024-01-01T00:00:00Z"), msg("m2", "2024-01-02T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CacheMessages("B", []store.Message{msg("m3", "2024-01-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", stats.TotalMessages)
	}
	if stats.Conversations != 2 {
		t.Errorf("Conversations = %d, want 2", stats.Conversations)
	}
}

func TestNormalizeCreatedAt(t *testing.T) {
	got := normalizeCreatedAt("2024-01-01T03:00:00+03:00")
	if got != "2024-01-01T00:00:00.000Z" {
		t.Errorf("normalized = %q, want UTC fixed-precision", got)
	}
	// Unparseable values pass through.
	if s := normalizeCreatedAt("not-a-time"); s != "not-a-time" {
		t.Errorf("got %q, want verbatim", s)
	}
}
