package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// peerQueueSize bounds each peer's outbound queue. A peer that falls this
// far behind loses messages rather than stalling the game loop.
const peerQueueSize = 64

// ErrTooManyPeers is returned when the peer limit is reached.
var ErrTooManyPeers = errors.New("too many peers")

// writeFunc delivers one message to a peer's connection.
type writeFunc func(ctx context.Context, msg any) error

// Peer is one subscribed observer.
type Peer struct {
	id        string
	transport string
	out       chan any
	write     writeFunc
	onClose   func()

	mu       sync.Mutex
	lastSeen time.Time
	dropped  uint64
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newPeer(id, transport string, write writeFunc, onClose func()) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		id:        id,
		transport: transport,
		out:       make(chan any, peerQueueSize),
		write:     write,
		onClose:   onClose,
		lastSeen:  time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (p *Peer) ID() string        { return p.id }
func (p *Peer) Transport() string { return p.transport }

// Send queues msg without blocking. It reports false when the queue was
// full and the message was dropped.
func (p *Peer) Send(msg any) bool {
	select {
	case p.out <- msg:
		return true
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return false
	}
}

// Dropped returns the number of messages dropped on a full queue.
func (p *Peer) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Touch records that the peer was heard from.
func (p *Peer) Touch(now time.Time) {
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

func (p *Peer) idleSince(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastSeen)
}

// run writes queued messages until the peer is closed or a write fails.
func (p *Peer) run(log *slog.Logger) error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case msg := <-p.out:
			if err := p.write(p.ctx, msg); err != nil {
				if p.ctx.Err() != nil {
					return nil
				}
				log.Debug("peer write failed", "peer", p.id, "err", err)
				return err
			}
		}
	}
}

func (p *Peer) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if p.onClose != nil {
		p.onClose()
	}
}

// PeerSet is the registry of subscribed observers. Transport goroutines add
// and remove peers; the game loop broadcasts to them.
type PeerSet struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	max   int
	log   *slog.Logger
}

func NewPeerSet(max int, log *slog.Logger) *PeerSet {
	return &PeerSet{
		peers: make(map[string]*Peer),
		max:   max,
		log:   log,
	}
}

// Add registers a peer and starts its writer. The peer is removed when its
// writer stops; Remove, Expire and CloseAll return once it is gone.
func (s *PeerSet) Add(id, transport string, write writeFunc, onClose func()) (*Peer, error) {
	s.mu.Lock()
	if _, exists := s.peers[id]; exists {
		s.mu.Unlock()
		return nil, errors.New("duplicate peer " + id)
	}
	if s.max > 0 && len(s.peers) >= s.max {
		s.mu.Unlock()
		return nil, ErrTooManyPeers
	}
	p := newPeer(id, transport, write, onClose)
	s.peers[id] = p
	s.mu.Unlock()

	s.log.Info("peer subscribed", "peer", id, "transport", transport)

	go func() {
		err := p.run(s.log)
		s.remove(p, err)
		close(p.done)
	}()
	return p, nil
}

// Get returns the peer with id.
func (s *PeerSet) Get(id string) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

// Remove unsubscribes the peer with id.
func (s *PeerSet) Remove(id string) {
	s.mu.RLock()
	p, ok := s.peers[id]
	s.mu.RUnlock()
	if ok {
		p.close()
		<-p.done
	}
}

func (s *PeerSet) remove(p *Peer, err error) {
	s.mu.Lock()
	if cur, ok := s.peers[p.id]; ok && cur == p {
		delete(s.peers, p.id)
	}
	s.mu.Unlock()
	p.close()

	if err != nil {
		s.log.Info("peer dropped", "peer", p.id, "err", err)
	} else {
		s.log.Info("peer unsubscribed", "peer", p.id)
	}
}

// Broadcast queues msg for every peer.
func (s *PeerSet) Broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.peers {
		p.Send(msg)
	}
}

// Expire removes peers of the given transport not heard from within idle.
func (s *PeerSet) Expire(transport string, now time.Time, idle time.Duration) int {
	var stale []*Peer
	s.mu.RLock()
	for _, p := range s.peers {
		if p.transport == transport && p.idleSince(now) > idle {
			stale = append(stale, p)
		}
	}
	s.mu.RUnlock()

	for _, p := range stale {
		s.log.Info("peer expired", "peer", p.id)
		p.close()
		<-p.done
	}
	return len(stale)
}

// Len returns the number of subscribed peers.
func (s *PeerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// CloseAll unsubscribes every peer.
func (s *PeerSet) CloseAll() {
	s.mu.RLock()
	all := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		all = append(all, p)
	}
	s.mu.RUnlock()

	for _, p := range all {
		p.close()
		<-p.done
	}
}
