package daemon

import (
	"context"

	"github.com/tchatapp/tchat/internal/bus"
	intsync "github.com/tchatapp/tchat/internal/sync"
	"go.uber.org/zap"
)

// SignalPump turns new-activity signals into background syncs, so the cache
// for a conversation is already fresh by the time the user opens it.
type SignalPump struct {
	engine *intsync.Engine
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

func NewSignalPump(engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *SignalPump {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalPump{engine: engine, bus: b, logger: logger}
}

// Start subscribes to signal events and syncs the signalled conversation in
// the background until the context is cancelled or Stop is called.
func (sp *SignalPump) Start(ctx context.Context) {
	ctx, sp.cancel = context.WithCancel(ctx)
	ch, unsub := sp.bus.Subscribe("signal", 16)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-ch:
				sig, ok := evt.Payload.(bus.SignalMessage)
				if !ok || sig.SenderID == "" {
					continue
				}
				sp.logger.Info("new activity signalled, syncing conversation",
					zap.String("conversation", sig.SenderID))
				if _, err := sp.engine.GetMessagesCacheFirst(ctx, sig.SenderID); err != nil {
					sp.logger.Warn("signal-driven sync failed",
						zap.String("conversation", sig.SenderID), zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the pump.
func (sp *SignalPump) Stop() {
	if sp.cancel != nil {
		sp.cancel()
	}
}
