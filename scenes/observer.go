package scenes

import (
	"log/slog"
	"sync"
	"time"

	"github.com/automoto/physrep/archetypes"
	"github.com/automoto/physrep/components"
	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/logging"
	"github.com/automoto/physrep/network"
	"github.com/automoto/physrep/shared/messages"
	"github.com/automoto/physrep/systems"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// Stats summarizes the observer state after a frame.
type Stats struct {
	Estimate    time.Duration
	PlayoutTime time.Duration
	Buffered    int
	Bodies      int
	Scheduled   bool
	LastSkip    network.SkipReason
}

// ObserverScene owns the observer's replication state and ECS world and
// advances them once per frame.
type ObserverScene struct {
	ecsWorld *ecs.ECS
	source   network.Source
	rep      *systems.Replication
	entities *network.EntityMap
	removed  map[messages.ObjectID]struct{}
	once     sync.Once
	log      *slog.Logger
}

// NewObserverScene creates a scene fed by source. source may be nil when the
// caller ingests traffic itself.
func NewObserverScene(source network.Source, cfg config.ReplicationConfig) *ObserverScene {
	entities := network.NewEntityMap()
	return &ObserverScene{
		source:   source,
		entities: entities,
		removed:  make(map[messages.ObjectID]struct{}),
		rep: &systems.Replication{
			Estimator: network.NewClockEstimator(cfg.ClockWindow),
			Buffer:    network.NewSnapshotBuffer(),
			Scheduler: network.NewPlayoutScheduler(cfg.PlayoutDelay),
			Resolver:  entities,
		},
		log: logging.Component("observer"),
	}
}

func (s *ObserverScene) configure() {
	s.ecsWorld = ecs.NewECS(donburi.NewWorld())
	s.ecsWorld.AddSystem(systems.ClearInterpolation)
	s.ecsWorld.AddSystem(systems.NewQueueInterpolationSystem(s.rep))
	s.ecsWorld.AddSystem(systems.UpdateInterpolation)
}

// Update runs one frame at local time now: ingest pending traffic, refresh
// the clock estimate, then clear, queue and interpolate.
func (s *ObserverScene) Update(now time.Duration) {
	s.once.Do(s.configure)

	if s.source != nil {
		s.Ingest(s.source.Drain(), now)
	}
	s.rep.Estimator.Update(now)
	s.ecsWorld.Update()
}

// Ingest records received traffic, stamping it with receivedAt.
func (s *ObserverScene) Ingest(in network.Inbox, receivedAt time.Duration) {
	s.once.Do(s.configure)

	for _, sample := range in.Samples {
		s.rep.Estimator.Add(sample, receivedAt)
	}
	for _, snap := range in.Snapshots {
		s.spawnUnknown(snap)
		s.rep.Buffer.Insert(snap)
	}
	for _, r := range in.Removed {
		s.despawn(r.ID)
	}
}

// spawnUnknown creates a local entity for every object seen for the first
// time, placed at its snapshot pose.
func (s *ObserverScene) spawnUnknown(snap messages.PhysicsSnapshot) {
	world := s.ecsWorld.World
	for _, body := range snap.Bodies {
		if _, gone := s.removed[body.ID]; gone {
			continue
		}
		if e, ok := s.entities.Lookup(body.ID); ok && world.Valid(e) {
			continue
		}

		entry := archetypes.ReplicatedProxy.Spawn(s.ecsWorld)
		components.Replicated.SetValue(entry, components.ReplicatedData{ID: body.ID})
		rot := body.Pose.Rotation
		if rot.Len() == 0 {
			rot = mgl32.QuatIdent()
		}
		components.Transform.SetValue(entry, components.TransformData{
			Position: body.Pose.Position,
			Rotation: rot,
		})
		if prev, replaced := s.entities.Bind(body.ID, entry.Entity()); replaced && world.Valid(prev) {
			world.Remove(prev)
		}
		s.log.Debug("spawned replicated body", "id", body.ID)
	}
}

// despawn removes the local entity for id. Origin IDs are never reused, so
// the ID is remembered and late snapshots naming it do not respawn it.
func (s *ObserverScene) despawn(id messages.ObjectID) {
	s.removed[id] = struct{}{}

	e, ok := s.entities.Lookup(id)
	if !ok {
		return
	}
	s.entities.Unbind(id, e)
	if s.ecsWorld.World.Valid(e) {
		s.ecsWorld.World.Remove(e)
	}
	s.log.Debug("despawned replicated body", "id", id)
}

// Pose returns the rendered pose of the entity mirroring id.
func (s *ObserverScene) Pose(id messages.ObjectID) (components.TransformData, bool) {
	s.once.Do(s.configure)

	e, ok := s.entities.Lookup(id)
	if !ok || !s.ecsWorld.World.Valid(e) {
		return components.TransformData{}, false
	}
	return *components.Transform.Get(s.ecsWorld.World.Entry(e)), true
}

// World returns the ECS world.
func (s *ObserverScene) World() donburi.World {
	s.once.Do(s.configure)
	return s.ecsWorld.World
}

// Stats reports the state after the most recent frame.
func (s *ObserverScene) Stats() Stats {
	return Stats{
		Estimate:    s.rep.Estimator.Estimate(),
		PlayoutTime: s.rep.Bracket.PlayoutTime,
		Buffered:    s.rep.Buffer.Len(),
		Bodies:      s.entities.Len(),
		Scheduled:   s.rep.Scheduled,
		LastSkip:    s.rep.Scheduler.LastSkip(),
	}
}
