package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/shared/messages"
	"github.com/automoto/physrep/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	kcp "github.com/xtaci/kcp-go/v5"
	"golang.org/x/time/rate"
)

const (
	// subscribeTimeout bounds the wait for a stream observer's Subscribe.
	subscribeTimeout = 5 * time.Second
	// peerIdle is how long a datagram peer may go without a keepalive.
	peerIdle = 10 * time.Second
)

// Listener accepts observers on one transport.
type Listener interface {
	Serve(ctx context.Context) error
	Addr() net.Addr
	Close() error
}

func newListener(s *Server, transport, addr string) (Listener, error) {
	switch transport {
	case config.TransportWebSocket:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return newWSListener(s, ln), nil
	case config.TransportUDP:
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		return &udpListener{server: s, pc: pc, limiters: make(map[string]*rate.Limiter)}, nil
	case config.TransportKCP:
		ln, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return &kcpListener{server: s, listener: ln}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", transport)
	}
}

// checkSubscribe validates the first message from an observer.
func checkSubscribe(msg any) (messages.Subscribe, error) {
	sub, ok := msg.(messages.Subscribe)
	if !ok {
		return sub, fmt.Errorf("expected subscribe, got %T", msg)
	}
	if sub.Version != config.Version {
		return sub, fmt.Errorf("version mismatch: observer %q, origin %q", sub.Version, config.Version)
	}
	return sub, nil
}

// expireIdle drops peers of transport that stopped sending keepalives.
func expireIdle(ctx context.Context, peers *PeerSet, transport string, onExpire func()) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if peers.Expire(transport, now, peerIdle) > 0 && onExpire != nil {
				onExpire()
			}
		}
	}
}

// --- WebSocket ---

type wsListener struct {
	server *Server
	ln     net.Listener
	http   *http.Server
}

func newWSListener(s *Server, ln net.Listener) *wsListener {
	l := &wsListener{server: s, ln: ln}
	mux := http.NewServeMux()
	mux.HandleFunc("/replicate", l.handleReplicate)
	l.http = &http.Server{Handler: mux, ReadHeaderTimeout: subscribeTimeout}
	return l
}

func (l *wsListener) Serve(ctx context.Context) error {
	err := l.http.Serve(l.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (l *wsListener) Addr() net.Addr { return l.ln.Addr() }

func (l *wsListener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return l.http.Shutdown(ctx)
}

// writeRouted sends msg as a necs router message.
func writeRouted(ctx context.Context, conn *websocket.Conn, msg any) error {
	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize %T: %w", msg, err)
	}
	return conn.Write(ctx, websocket.MessageBinary, payload)
}

func (l *wsListener) handleReplicate(w http.ResponseWriter, r *http.Request) {
	log := l.server.log.With("remote", r.RemoteAddr)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(protocol.MaxPacketSize)
	ctx := r.Context()

	readCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	_, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		log.Debug("no subscribe received", "err", err)
		conn.CloseNow()
		return
	}
	msg, err := protocol.Unmarshal(data)
	if err == nil {
		_, err = checkSubscribe(msg)
	}
	if err != nil {
		log.Warn("subscription rejected", "err", err)
		_ = writeRouted(ctx, conn, messages.SubscribeRejected{Reason: err.Error()})
		conn.Close(websocket.StatusPolicyViolation, "subscription rejected")
		return
	}

	id := "ws-" + r.RemoteAddr
	peer, err := l.server.peers.Add(id, config.TransportWebSocket,
		func(ctx context.Context, msg any) error { return writeRouted(ctx, conn, msg) },
		func() { conn.Close(websocket.StatusNormalClosure, "") },
	)
	if err != nil {
		_ = writeRouted(ctx, conn, messages.SubscribeRejected{Reason: err.Error()})
		conn.Close(websocket.StatusTryAgainLater, err.Error())
		return
	}
	peer.Send(l.server.Accepted())

	// Read until the observer unsubscribes or goes away; reading also keeps
	// control frames flowing.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			l.server.peers.Remove(id)
			return
		}
		msg, err := protocol.Unmarshal(data)
		if err != nil {
			log.Debug("dropping bad message", "err", err)
			continue
		}
		peer.Touch(time.Now())
		if _, ok := msg.(messages.Unsubscribe); ok {
			l.server.peers.Remove(id)
			return
		}
	}
}

// --- UDP ---

type udpListener struct {
	server *Server
	pc     net.PacketConn

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func (l *udpListener) Addr() net.Addr { return l.pc.LocalAddr() }
func (l *udpListener) Close() error   { return l.pc.Close() }

// limiter returns the per-address inbound limiter. Keepalives arrive well
// under the limit; floods from one address are dropped before decoding.
func (l *udpListener) limiter(addr string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(2, 5)
		l.limiters[addr] = lim
	}
	return lim
}

func (l *udpListener) pruneLimiters() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr := range l.limiters {
		if _, ok := l.server.peers.Get("udp-" + addr); !ok {
			delete(l.limiters, addr)
		}
	}
}

func (l *udpListener) Serve(ctx context.Context) error {
	go expireIdle(ctx, l.server.peers, config.TransportUDP, l.pruneLimiters)

	buf := make([]byte, protocol.MaxPacketSize)
	for {
		n, from, err := l.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}
		key := from.String()
		if !l.limiter(key).Allow() {
			continue
		}
		msg, err := protocol.Unmarshal(buf[:n])
		if err != nil {
			l.server.log.Debug("dropping bad datagram", "from", key, "err", err)
			continue
		}
		l.handle(key, from, msg)
	}
}

func (l *udpListener) handle(key string, from net.Addr, msg any) {
	id := "udp-" + key
	switch msg.(type) {
	case messages.Subscribe:
		if peer, ok := l.server.peers.Get(id); ok {
			peer.Touch(time.Now())
			return
		}
		if _, err := checkSubscribe(msg); err != nil {
			l.server.log.Warn("subscription rejected", "from", key, "err", err)
			return
		}
		_, err := l.server.peers.Add(id, config.TransportUDP, func(_ context.Context, msg any) error {
			data, err := protocol.Marshal(msg)
			if err != nil {
				// Not every message has a datagram encoding; skip it.
				if errors.Is(err, protocol.ErrUnknownKind) {
					return nil
				}
				return err
			}
			if _, err := l.pc.WriteTo(data, from); err != nil && !errors.Is(err, net.ErrClosed) {
				l.server.log.Debug("udp write failed", "to", key, "err", err)
			}
			return nil
		}, nil)
		if err != nil {
			l.server.log.Warn("subscription refused", "from", key, "err", err)
		}
	case messages.Unsubscribe:
		l.server.peers.Remove(id)
	}
}

// --- KCP ---

type kcpListener struct {
	server   *Server
	listener *kcp.Listener
}

func (l *kcpListener) Addr() net.Addr { return l.listener.Addr() }
func (l *kcpListener) Close() error   { return l.listener.Close() }

func (l *kcpListener) Serve(ctx context.Context) error {
	// A kcp session has no close handshake, so an observer that vanishes
	// without unsubscribing is only noticed by its missing keepalives.
	go expireIdle(ctx, l.server.peers, config.TransportKCP, nil)

	for {
		sess, err := l.listener.AcceptKCP()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("kcp accept: %w", err)
		}
		sess.SetStreamMode(true)
		sess.SetNoDelay(1, 10, 2, 1)
		go l.handle(sess)
	}
}

func (l *kcpListener) handle(sess *kcp.UDPSession) {
	key := sess.RemoteAddr().String()
	log := l.server.log.With("remote", key)
	link := protocol.NewStreamLink(sess)

	_ = sess.SetReadDeadline(time.Now().Add(subscribeTimeout))
	msg, err := link.ReadMessage()
	if err == nil {
		_, err = checkSubscribe(msg)
	}
	if err != nil {
		log.Warn("subscription rejected", "err", err)
		link.Close()
		return
	}
	_ = sess.SetReadDeadline(time.Time{})

	id := "kcp-" + key
	peer, err := l.server.peers.Add(id, config.TransportKCP,
		func(_ context.Context, msg any) error {
			err := link.WriteMessage(msg)
			if errors.Is(err, protocol.ErrUnknownKind) {
				return nil
			}
			return err
		},
		func() { link.Close() },
	)
	if err != nil {
		log.Warn("subscription refused", "err", err)
		link.Close()
		return
	}

	for {
		msg, err := link.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownKind) || errors.Is(err, protocol.ErrMalformed) ||
				errors.Is(err, protocol.ErrShortPacket) {
				continue
			}
			l.server.peers.Remove(id)
			return
		}
		peer.Touch(time.Now())
		if _, ok := msg.(messages.Unsubscribe); ok {
			l.server.peers.Remove(id)
			return
		}
	}
}
