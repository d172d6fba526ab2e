package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/logging"
	"github.com/automoto/physrep/shared/messages"
	"github.com/automoto/physrep/shared/protocol"
	kcp "github.com/xtaci/kcp-go/v5"
	"golang.org/x/time/rate"
)

const (
	// KeepaliveInterval is how often a datagram observer re-sends Subscribe.
	// The origin expires peers it has not heard from for a few intervals.
	KeepaliveInterval = 2 * time.Second

	// Inbound flood guard: packets beyond this rate are dropped unread.
	inboundPacketsPerSecond = 2000
	inboundBurst            = 256
)

// DatagramClient receives replication traffic over udp or kcp using the
// binary codec in shared/protocol.
type DatagramClient struct {
	transport string
	addr      string
	dial      func() (protocol.Link, error)

	mu        sync.RWMutex
	state     ClientState
	lastError error
	link      protocol.Link
	dropped   uint64

	limiter *rate.Limiter
	q       queues
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDatagramClient creates a client for transport "udp" or "kcp".
func NewDatagramClient(transport, addr string) (*DatagramClient, error) {
	c := newDatagramClient(transport, addr)
	switch transport {
	case config.TransportUDP:
		c.dial = func() (protocol.Link, error) {
			conn, err := net.Dial("udp", addr)
			if err != nil {
				return nil, err
			}
			return protocol.NewPacketLink(conn), nil
		}
	case config.TransportKCP:
		c.dial = func() (protocol.Link, error) {
			sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
			if err != nil {
				return nil, err
			}
			sess.SetStreamMode(true)
			sess.SetNoDelay(1, 10, 2, 1)
			return protocol.NewStreamLink(sess), nil
		}
	default:
		return nil, fmt.Errorf("unsupported datagram transport %q", transport)
	}
	return c, nil
}

func newDatagramClient(transport, addr string) *DatagramClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &DatagramClient{
		transport: transport,
		addr:      addr,
		state:     StateDisconnected,
		limiter:   rate.NewLimiter(rate.Limit(inboundPacketsPerSecond), inboundBurst),
		q:         newQueues(),
		log:       logging.Component("transport").With("transport", transport),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect opens the socket, subscribes, and starts the receive and
// keepalive loops.
func (c *DatagramClient) Connect(version, observerName string) error {
	c.setState(StateConnecting)

	link, err := c.dial()
	if err != nil {
		err = fmt.Errorf("dial %s %s: %w", c.transport, c.addr, err)
		c.setError(err)
		return err
	}

	c.mu.Lock()
	c.link = link
	c.state = StateConnected
	c.mu.Unlock()

	sub := messages.Subscribe{Version: version, ObserverName: observerName}
	if err := link.WriteMessage(sub); err != nil {
		err = fmt.Errorf("send subscribe: %w", err)
		c.setError(err)
		_ = link.Close()
		return err
	}
	c.log.Info("subscribing", "addr", c.addr)

	c.wg.Add(2)
	go c.receiveLoop(link)
	go c.keepaliveLoop(link, sub)
	return nil
}

func (c *DatagramClient) receiveLoop(link protocol.Link) {
	defer c.wg.Done()

	for {
		msg, err := link.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if errors.Is(err, protocol.ErrUnknownKind) ||
				errors.Is(err, protocol.ErrMalformed) ||
				errors.Is(err, protocol.ErrShortPacket) {
				c.log.Debug("dropping bad packet", "err", err)
				continue
			}
			if c.transport == config.TransportUDP && !errors.Is(err, io.EOF) {
				// Connected udp sockets surface ICMP errors from an origin
				// that is not up yet; keep listening.
				c.log.Debug("udp read error", "err", err)
				select {
				case <-c.ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			c.setError(fmt.Errorf("receive: %w", err))
			return
		}

		if !c.limiter.Allow() {
			c.mu.Lock()
			c.dropped++
			c.mu.Unlock()
			continue
		}

		if c.q.push(msg) {
			c.markSubscribed()
		}
	}
}

func (c *DatagramClient) keepaliveLoop(link protocol.Link, sub messages.Subscribe) {
	defer c.wg.Done()

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := link.WriteMessage(sub); err != nil {
				c.log.Debug("keepalive failed", "err", err)
			}
		}
	}
}

func (c *DatagramClient) markSubscribed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnected {
		c.state = StateSubscribed
		c.log.Info("receiving replication traffic", "addr", c.addr)
	}
}

// Close unsubscribes, closes the socket and waits for the loops to exit.
func (c *DatagramClient) Close() error {
	c.mu.Lock()
	link := c.link
	c.link = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.cancel()
	if link == nil {
		return nil
	}
	_ = link.WriteMessage(messages.Unsubscribe{})
	err := link.Close()
	c.wg.Wait()
	return err
}

// Drain returns everything received since the last call. Non-blocking.
func (c *DatagramClient) Drain() Inbox {
	return c.q.drain()
}

func (c *DatagramClient) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *DatagramClient) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Dropped returns the number of packets discarded by the flood guard.
func (c *DatagramClient) Dropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

func (c *DatagramClient) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *DatagramClient) setError(err error) {
	c.log.Error("client error", "err", err)
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}
