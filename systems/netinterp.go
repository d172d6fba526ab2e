package systems

import (
	"github.com/automoto/physrep/components"
	"github.com/automoto/physrep/logging"
	"github.com/automoto/physrep/network"
	"github.com/automoto/physrep/shared/gamemath"
	"github.com/automoto/physrep/shared/messages"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/ecs"
)

// Resolver maps origin object IDs to local entities.
type Resolver interface {
	Lookup(id messages.ObjectID) (donburi.Entity, bool)
}

// Replication is the observer state shared by the interpolation systems.
// The scene updates Estimator before running the systems each frame.
type Replication struct {
	Estimator *network.ClockEstimator
	Buffer    *network.SnapshotBuffer
	Scheduler *network.PlayoutScheduler
	Resolver  Resolver

	// Bracket is the most recent frame's bracket; valid when Scheduled is true.
	Bracket   network.Bracket
	Scheduled bool
}

// ClearInterpolation resets every entity's interpolation state so nothing
// carries over from the previous frame.
func ClearInterpolation(e *ecs.ECS) {
	components.SnapshotInterpolation.Each(e.World, func(entry *donburi.Entry) {
		components.SnapshotInterpolation.Get(entry).Reset()
	})
}

// NewQueueInterpolationSystem returns an update system that picks the
// snapshot bracket for the current clock estimate and hands each resolvable
// object its start and end poses.
func NewQueueInterpolationSystem(r *Replication) func(*ecs.ECS) {
	log := logging.Component("interp")

	return func(e *ecs.ECS) {
		estimate := r.Estimator.Estimate()
		bracket, ok := r.Scheduler.Schedule(r.Buffer, estimate)
		r.Bracket, r.Scheduled = bracket, ok
		if !ok {
			log.Debug("no interpolation bracket",
				"reason", r.Scheduler.LastSkip().String(),
				"playout", bracket.PlayoutTime,
				"buffered", r.Buffer.Len())
			return
		}

		for _, body := range bracket.Start.Bodies {
			data := queueEntry(e.World, r.Resolver, body.ID, &bracket)
			if data == nil {
				continue
			}
			pose := body.Pose
			data.Start = &pose
		}
		for _, body := range bracket.End.Bodies {
			data := queueEntry(e.World, r.Resolver, body.ID, &bracket)
			if data == nil {
				continue
			}
			pose := body.Pose
			data.End = &pose
		}
	}
}

// queueEntry resolves id and returns its interpolation state with the
// frame's bracket parameters filled in. It returns nil for unknown objects
// and for entities that do not carry SnapshotInterpolation.
func queueEntry(w donburi.World, r Resolver, id messages.ObjectID, b *network.Bracket) *components.SnapshotInterpolationData {
	entity, ok := r.Lookup(id)
	if !ok || !w.Valid(entity) {
		return nil
	}
	entry := w.Entry(entity)
	if !entry.HasComponent(components.SnapshotInterpolation) {
		return nil
	}
	data := components.SnapshotInterpolation.Get(entry)
	data.Fraction = b.Fraction
	data.VelocityScale = b.VelocityScale
	return data
}

// UpdateInterpolation writes the blended pose of every entity holding both
// bracketing poses into its Transform. Entities missing either side keep
// their last rendered pose.
func UpdateInterpolation(e *ecs.ECS) {
	components.SnapshotInterpolation.Each(e.World, func(entry *donburi.Entry) {
		data := components.SnapshotInterpolation.Get(entry)
		if !data.Complete() || !entry.HasComponent(components.Transform) {
			return
		}
		start, end := data.Start, data.End

		tf := components.Transform.Get(entry)
		tf.Position = gamemath.Hermite(data.Fraction,
			start.Position, start.LinearVelocity.Mul(data.VelocityScale),
			end.Position, end.LinearVelocity.Mul(data.VelocityScale))
		tf.Rotation = gamemath.Slerp(start.Rotation, end.Rotation, data.Fraction)
	})
}
