package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/automoto/physrep/logging"
	"github.com/automoto/physrep/shared/messages"
	"github.com/automoto/physrep/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

// Client receives replication traffic from the origin over a WebSocket.
// All shared fields are protected by mu (router callbacks run on necs goroutines).
type Client struct {
	mu sync.RWMutex

	state      ClientState
	lastError  error
	serverName string
	tickRate   int
	accepted   messages.SubscribeAccepted
	conn       *websocket.Conn

	q   queues
	log *slog.Logger
}

func NewClient() *Client {
	return &Client{
		state: StateDisconnected,
		q:     newQueues(),
		log:   logging.Component("transport").With("transport", "ws"),
	}
}

// Connect dials the origin in a background goroutine and subscribes once
// the socket is open.
func (c *Client) Connect(address, version, observerName string) {
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	c.mu.Unlock()

	router.OnConnect(func(_ *router.NetworkClient) {
		c.log.Info("connected to origin", "addr", address)
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()

		if err := c.SendMessage(messages.Subscribe{Version: version, ObserverName: observerName}); err != nil {
			c.setError(fmt.Errorf("send subscribe: %w", err))
		}
	})

	router.On(func(_ *router.NetworkClient, msg messages.SubscribeAccepted) {
		c.onAccepted(msg)
	})

	router.On(func(_ *router.NetworkClient, msg messages.SubscribeRejected) {
		c.log.Warn("subscription rejected", "reason", msg.Reason)
		c.setError(fmt.Errorf("subscription rejected: %s", msg.Reason))
	})

	router.On(func(_ *router.NetworkClient, msg messages.TimeSample) {
		c.q.push(msg)
	})

	router.On(func(_ *router.NetworkClient, msg messages.PhysicsSnapshot) {
		c.q.push(msg)
	})

	router.On(func(_ *router.NetworkClient, msg messages.BodyRemoved) {
		c.q.push(msg)
	})

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		c.onDisconnect(err)
	})

	router.OnError(func(_ *router.NetworkClient, err error) {
		c.log.Warn("router error", "err", err)
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + address + "/replicate")
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.setError(fmt.Errorf("connection failed: %w", err))
		}
	}()
}

func (c *Client) onAccepted(msg messages.SubscribeAccepted) {
	c.log.Info("subscribed",
		"server", msg.ServerName,
		"tickRate", msg.TickRate,
		"sampleIntervalMs", msg.ClockSampleIntervalMs,
		"snapshotIntervalMs", msg.SnapshotIntervalMs)
	c.mu.Lock()
	c.serverName = msg.ServerName
	c.tickRate = msg.TickRate
	c.accepted = msg
	c.state = StateSubscribed
	c.mu.Unlock()
}

func (c *Client) onDisconnect(err error) {
	c.log.Info("disconnected", "err", err)
	c.mu.Lock()
	if c.state != StateError {
		c.state = StateDisconnected
	}
	c.conn = nil
	c.mu.Unlock()
}

// Close sends an unsubscribe when possible and drops the connection.
func (c *Client) Close() error {
	_ = c.SendMessage(messages.Unsubscribe{})

	c.mu.Lock()
	conn := c.conn
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	router.ResetRouter()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "observer closing")
	}
	return nil
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) ServerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName
}

func (c *Client) TickRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickRate
}

// Accepted returns the origin's subscription reply, including its emission
// cadences.
func (c *Client) Accepted() messages.SubscribeAccepted {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accepted
}

// Drain returns everything received since the last call. Non-blocking.
func (c *Client) Drain() Inbox {
	return c.q.drain()
}

var errNotConnected = errors.New("not connected")

// SendMessage sends a control message (Subscribe or Unsubscribe) to the
// origin. Upstream messages use the shared/protocol codec on every
// transport; downstream ws traffic is necs router serialized.
func (c *Client) SendMessage(msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errNotConnected
	}

	payload, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *Client) setError(err error) {
	c.log.Error("client error", "err", err)
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}
