package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/automoto/physrep/components"
	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/logging"
	"github.com/automoto/physrep/shared/leveldata"
	"github.com/automoto/physrep/shared/messages"
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// Options configures a Server.
type Options struct {
	Name        string
	Addr        string
	Transport   string
	TickRate    int
	MaxPeers    int
	Replication config.ReplicationConfig
}

// OptionsFromConfig builds Options from the package-level config.
func OptionsFromConfig() Options {
	return Options{
		Name:        config.Origin.Name,
		Addr:        config.Origin.Addr,
		Transport:   config.Origin.Transport,
		TickRate:    config.Origin.TickRate,
		MaxPeers:    config.Origin.MaxPeers,
		Replication: config.Replication,
	}
}

// Server owns the authoritative simulation and replicates it to observers.
type Server struct {
	opts Options
	log  *slog.Logger

	// mu guards the world and everything below it; the game loop holds it
	// for a whole tick.
	mu             sync.Mutex
	ecs            *ecs.ECS
	space          *resolv.Space
	arena          *leveldata.ArenaData
	spawns         map[messages.ObjectID]leveldata.BodySpawn
	nextID         messages.ObjectID
	pendingRemoved []messages.ObjectID
	lastTick       time.Duration
	sampler        *ClockSampler
	broadcaster    *SnapshotBroadcaster

	peers    *PeerSet
	loop     *GameLoop
	listener Listener
	started  time.Time
}

// NewServer creates a server with an empty world.
func NewServer(opts Options) *Server {
	log := logging.Component("origin")
	s := &Server{
		opts:        opts,
		log:         log,
		ecs:         ecs.NewECS(donburi.NewWorld()),
		spawns:      make(map[messages.ObjectID]leveldata.BodySpawn),
		nextID:      1,
		sampler:     NewClockSampler(opts.Replication.ClockSampleInterval),
		broadcaster: NewSnapshotBroadcaster(opts.Replication.SnapshotInterval),
		peers:       NewPeerSet(opts.MaxPeers, logging.Component("transport")),
		started:     time.Now(),
	}
	s.loop = NewGameLoop(s, opts.TickRate)
	return s
}

// LoadArena builds the arena's solids and spawns its bodies.
func (s *Server) LoadArena(data *leveldata.ArenaData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.arena = data
	s.space = spawnArena(s.ecs, data)
	for _, b := range data.Bodies {
		s.spawnLocked(b)
	}
	s.log.Info("loaded arena",
		"arena", data.Name,
		"solids", len(data.Solids),
		"bodies", len(data.Bodies),
		"size", fmt.Sprintf("%dx%d", data.Width, data.Height))
}

// SpawnBody adds a replicated body and returns its ID. IDs are never reused.
func (s *Server) SpawnBody(spawn leveldata.BodySpawn) (messages.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.space == nil {
		return 0, errors.New("no arena loaded")
	}
	return s.spawnLocked(spawn), nil
}

func (s *Server) spawnLocked(spawn leveldata.BodySpawn) messages.ObjectID {
	id := s.nextID
	s.nextID++
	spawnBody(s.ecs, s.space, id, spawn)
	s.spawns[id] = spawn
	return id
}

// RemoveBody despawns the body with id and queues a BodyRemoved for
// observers. It reports false if no such body exists.
func (s *Server) RemoveBody(id messages.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Server) removeLocked(id messages.ObjectID) bool {
	entry := s.findBody(id)
	if entry == nil {
		return false
	}
	removeBody(s.ecs.World, s.space, entry)
	delete(s.spawns, id)
	s.pendingRemoved = append(s.pendingRemoved, id)
	return true
}

func (s *Server) findBody(id messages.ObjectID) *donburi.Entry {
	var found *donburi.Entry
	replicatedBodies.Each(s.ecs.World, func(entry *donburi.Entry) {
		if found == nil && components.Replicated.Get(entry).ID == id {
			found = entry
		}
	})
	return found
}

// Elapsed returns the origin simulation time.
func (s *Server) Elapsed() time.Duration {
	return time.Since(s.started)
}

// Tick advances the simulation to now and sends whatever replication
// traffic is due.
func (s *Server) Tick(now time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dt := float32((now - s.lastTick).Seconds())
	s.lastTick = now

	stepMovers(s.ecs.World, dt)
	stepBodies(s.ecs.World, dt)
	s.respawnEscaped()

	for _, id := range s.pendingRemoved {
		s.peers.Broadcast(messages.BodyRemoved{ID: id})
	}
	s.pendingRemoved = s.pendingRemoved[:0]

	if sample, ok := s.sampler.Poll(now); ok {
		s.peers.Broadcast(sample)
	}
	if snap, ok := s.broadcaster.Poll(now, s.ecs.World); ok {
		s.peers.Broadcast(snap)
	}
}

// respawnEscaped replaces bodies that left the arena bounds with fresh ones
// at their spawn point.
func (s *Server) respawnEscaped() {
	if s.arena == nil {
		return
	}
	w, h := float64(s.arena.Width), float64(s.arena.Height)

	var escaped []messages.ObjectID
	replicatedBodies.Each(s.ecs.World, func(entry *donburi.Entry) {
		cx, cy := components.Object.Get(entry).Center()
		if cx < 0 || cy < 0 || cx > w || cy > h {
			escaped = append(escaped, components.Replicated.Get(entry).ID)
		}
	})
	for _, id := range escaped {
		spawn := s.spawns[id]
		s.removeLocked(id)
		newID := s.spawnLocked(spawn)
		s.log.Info("body left the arena, respawned", "id", id, "newID", newID)
	}
}

// Bodies returns the current pose of every replicated body.
func (s *Server) Bodies() []messages.BodyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CaptureBodies(s.ecs.World)
}

// Peers returns the subscriber registry.
func (s *Server) Peers() *PeerSet {
	return s.peers
}

// Accepted is the reply sent to websocket subscribers.
func (s *Server) Accepted() messages.SubscribeAccepted {
	return messages.SubscribeAccepted{
		ServerName:            s.opts.Name,
		TickRate:              s.opts.TickRate,
		ClockSampleIntervalMs: messages.DurationToMs(s.opts.Replication.ClockSampleInterval),
		SnapshotIntervalMs:    messages.DurationToMs(s.opts.Replication.SnapshotInterval),
	}
}

// Listen opens the configured transport. It does not start serving.
func (s *Server) Listen() error {
	l, err := newListener(s, s.opts.Transport, s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", s.opts.Transport, s.opts.Addr, err)
	}
	s.listener = l
	return nil
}

// Addr returns the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run starts the game loop and serves observers until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go s.loop.Run()
	defer s.loop.Stop()

	s.log.Info("serving observers",
		"name", s.opts.Name,
		"transport", s.opts.Transport,
		"addr", s.listener.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.listener.Serve(ctx) }()

	select {
	case <-ctx.Done():
		err := s.listener.Close()
		s.peers.CloseAll()
		<-errCh
		return err
	case err := <-errCh:
		s.peers.CloseAll()
		return err
	}
}

// PeerCount returns the number of subscribed observers.
func (s *Server) PeerCount() int {
	return s.peers.Len()
}
