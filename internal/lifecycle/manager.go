// Package lifecycle keeps the cache scoped to the authenticated identity.
// Every auth transition that changes or ends an identity tears down the
// matching cache partition before anything else can observe stale data.
package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/identity"
	"github.com/tchatapp/tchat/internal/profile"
	"go.uber.org/zap"
)

// Manager wires auth-state transitions to cache partition teardown.
type Manager struct {
	base   string
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// New creates a manager over the given base directory.
func New(base string, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{base: base, bus: b, logger: logger}
}

// OnLogin must be called before a new session begins writing. If a different
// identity was previously active on this machine, that identity's entire
// partition is purged first. The purge completes before OnLogin returns.
func (m *Manager) OnLogin(userID string) error {
	prev := identity.Current(profile.StatePath(m.base))
	if prev != "" && prev != userID {
		m.logger.Info("identity changed, purging previous partition",
			zap.String("previous", prev), zap.String("current", userID))
		if err := m.PurgeUser(prev); err != nil {
			return fmt.Errorf("purge previous identity: %w", err)
		}
	}
	return nil
}

// OnLogout purges the current identity's partition. When no identity can be
// determined, every partition is wiped rather than risking stale data
// leaking into a later session.
func (m *Manager) OnLogout() error {
	return m.teardown("logout")
}

// OnSessionExpired handles a server-detected expiry (401/403): same teardown
// as an explicit logout.
func (m *Manager) OnSessionExpired() error {
	return m.teardown("session expired")
}

// OnAccountDeleted purges the deleted account's partition.
func (m *Manager) OnAccountDeleted() error {
	return m.teardown("account deleted")
}

func (m *Manager) teardown(reason string) error {
	statePath := profile.StatePath(m.base)
	cur := identity.Current(statePath)

	var err error
	if cur == "" {
		m.logger.Warn("identity indeterminate at purge time, wiping all partitions",
			zap.String("reason", reason))
		err = m.PurgeAll()
	} else {
		m.logger.Info("purging identity partition",
			zap.String("user", cur), zap.String("reason", reason))
		err = m.PurgeUser(cur)
	}
	if err != nil {
		return err
	}
	return identity.ClearState(statePath)
}

// PurgeUser removes one identity's partition: cache database, message image
// blobs, and profile-image blobs.
func (m *Manager) PurgeUser(userID string) error {
	if err := profile.ValidateID(userID); err != nil {
		return err
	}
	return os.RemoveAll(profile.Dir(m.base, userID))
}

// PurgeAll removes every identity partition on this machine.
func (m *Manager) PurgeAll() error {
	ids, err := profile.List(m.base)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.RemoveAll(profile.Dir(m.base, id)); err != nil {
			return err
		}
	}
	return nil
}

// Start subscribes to auth.expired events so interceptor-detected expiry
// triggers the same teardown as an explicit logout.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	ch, unsub := m.bus.Subscribe(bus.KindAuthExpired, 16)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				if err := m.OnSessionExpired(); err != nil {
					m.logger.Error("expiry teardown failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the event subscription.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}
