// Package realtime consumes the server's new-activity signal channel over a
// WebSocket and republishes signals on the bus. The cache subsystem itself
// never talks to this package; the daemon wires signals to background syncs.
package realtime

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/identity"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// envelope is the wire format for all signal events.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type newMessagePayload struct {
	SenderID string `json:"senderId"`
}

// Client maintains the signal connection and republishes events.
type Client struct {
	wsURL     string
	statePath string
	bus       *bus.Bus
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// New creates a signal client for the given server base URL.
func New(serverURL, statePath string, b *bus.Bus, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	wsURL := strings.Replace(serverURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.TrimRight(wsURL, "/") + "/ws"

	return &Client{
		wsURL:     wsURL,
		statePath: statePath,
		bus:       b,
		logger:    logger,
	}
}

// Start connects in the background and keeps reconnecting with exponential
// backoff until the context is cancelled or Stop is called.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop closes the connection loop.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		connected, err := c.connectAndRead(ctx)
		if connected {
			// A healthy connection forgets previous failures, otherwise
			// delays ratchet toward the cap for the life of the process.
			attempt = 0
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			delay := backoffDelay(attempt)
			attempt++
			c.logger.Warn("signal connection lost, reconnecting",
				zap.Error(err), zap.Duration("delay", delay), zap.Int("attempt", attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// connectAndRead dials and consumes the signal channel until the connection
// drops. Reports whether a connection was ever established.
func (c *Client) connectAndRead(ctx context.Context) (bool, error) {
	url := c.wsURL
	if st, err := identity.LoadState(c.statePath); err == nil && st.Token != "" {
		url += "?token=" + st.Token
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	c.logger.Info("signal channel connected")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("malformed signal envelope", zap.Error(err))
		return
	}

	switch env.Type {
	case "newMessageSignal":
		var p newMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn("malformed newMessageSignal payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Event{
			Kind:    bus.KindSignalMessage,
			Payload: bus.SignalMessage{SenderID: p.SenderID},
		})
	default:
		// Presence, typing and friend events exist on the wire but nothing
		// here consumes them.
	}
}

func backoffDelay(attempt int) time.Duration {
	jitter := time.Duration(rand.Float64() * float64(reconnectBaseDelay) * 0.5)
	delay := float64(reconnectBaseDelay)*math.Pow(2, float64(attempt)) + float64(jitter)
	return time.Duration(math.Min(delay, float64(reconnectMaxDelay)))
}
