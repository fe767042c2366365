package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/identity"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *bus.Bus, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	statePath := filepath.Join(t.TempDir(), "state.toml")
	b := bus.New()
	return New(srv.URL, statePath, b, nil), b, statePath
}

func TestFetchConversation(t *testing.T) {
	c, _, statePath := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/get/friend-42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"_id":"m1","senderId":"friend-42","receiverId":"me","message":"hi","createdAt":"2024-01-01T00:00:00Z"},
			{"_id":"m2","senderId":"me","receiverId":"friend-42","message":"hello","imageFiles":["a.png"],"createdAt":"2024-01-02T00:00:00Z"}
		]`))
	}))
	if err := identity.SaveState(statePath, &identity.State{UserID: "me", Token: "tok-1"}); err != nil {
		t.Fatal(err)
	}

	msgs, err := c.FetchConversation(context.Background(), "friend-42")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Body != "hi" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if len(msgs[1].AttachmentRefs) != 1 || msgs[1].AttachmentRefs[0] != "a.png" {
		t.Errorf("attachment refs = %v", msgs[1].AttachmentRefs)
	}
}

func TestLoginParsesLegacyID(t *testing.T) {
	c, _, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != "POST" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok","_id":"legacy-1","nickname":"Al"}`))
	}))

	resp, err := c.Login(context.Background(), "al", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID() != "legacy-1" {
		t.Errorf("ID() = %q, want legacy-1", resp.ID())
	}
}

func TestServerErrorMessagePreferred(t *testing.T) {
	c, _, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"username taken"}`))
	}))

	_, err := c.Signup(context.Background(), &SignupRequest{Username: "al"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "username taken" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestUnauthorizedPublishesAuthExpired(t *testing.T) {
	c, b, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	ch, unsub := b.Subscribe("auth.", 10)
	defer unsub()

	_, err := c.FetchConversation(context.Background(), "friend-42")
	if !IsAuthError(err) {
		t.Fatalf("IsAuthError = false for %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindAuthExpired {
			t.Errorf("kind = %q, want %q", evt.Kind, bus.KindAuthExpired)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for auth.expired")
	}
}

func TestServerFaultIsNotAuthExpiry(t *testing.T) {
	c, b, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ch, unsub := b.Subscribe("auth.", 10)
	defer unsub()

	_, err := c.FetchConversation(context.Background(), "friend-42")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsAuthError(err) {
		t.Error("500 classified as auth error")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for 500: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
