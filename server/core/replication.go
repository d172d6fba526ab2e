package core

import (
	"sort"
	"time"

	"github.com/automoto/physrep/components"
	"github.com/automoto/physrep/shared/messages"
	"github.com/automoto/physrep/tags"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

// intervalTimer fires when strictly more than interval has elapsed since it
// last fired. It starts as if it last fired at time zero.
type intervalTimer struct {
	interval time.Duration
	last     time.Duration
}

func (t *intervalTimer) due(now time.Duration) bool {
	if now > t.last+t.interval {
		t.last = now
		return true
	}
	return false
}

// ClockSampler emits the origin's simulation time at a fixed cadence so
// observers can estimate it.
type ClockSampler struct {
	timer intervalTimer
}

func NewClockSampler(interval time.Duration) *ClockSampler {
	return &ClockSampler{timer: intervalTimer{interval: interval}}
}

// Poll returns a sample stamped with now when one is due.
func (s *ClockSampler) Poll(now time.Duration) (messages.TimeSample, bool) {
	if !s.timer.due(now) {
		return messages.TimeSample{}, false
	}
	return messages.NewTimeSample(now), true
}

var replicatedBodies = donburi.NewQuery(filter.Contains(
	tags.ReplicateBody,
	components.Replicated,
	components.Object,
	components.Body,
))

// SnapshotBroadcaster captures every replicated body at a fixed cadence.
type SnapshotBroadcaster struct {
	timer intervalTimer
}

func NewSnapshotBroadcaster(interval time.Duration) *SnapshotBroadcaster {
	return &SnapshotBroadcaster{timer: intervalTimer{interval: interval}}
}

// Poll returns a snapshot of world stamped with now when one is due.
func (b *SnapshotBroadcaster) Poll(now time.Duration, world donburi.World) (messages.PhysicsSnapshot, bool) {
	if !b.timer.due(now) {
		return messages.PhysicsSnapshot{}, false
	}
	return messages.PhysicsSnapshot{
		TimeMs: messages.DurationToMs(now),
		Bodies: CaptureBodies(world),
	}, true
}

// CaptureBodies returns the pose of every entity tagged ReplicateBody,
// ordered by ID.
func CaptureBodies(world donburi.World) []messages.BodyEntry {
	var bodies []messages.BodyEntry
	replicatedBodies.Each(world, func(entry *donburi.Entry) {
		id := components.Replicated.Get(entry).ID
		obj := components.Object.Get(entry)
		body := components.Body.Get(entry)

		cx, cy := obj.Center()
		bodies = append(bodies, messages.BodyEntry{
			ID: id,
			Pose: messages.BodyPose{
				Position:       mgl32.Vec3{float32(cx), float32(cy), body.Z},
				LinearVelocity: body.LinearVelocity,
				Rotation:       body.Rotation,
			},
		})
	})
	sort.Slice(bodies, func(i, j int) bool { return bodies[i].ID < bodies[j].ID })
	return bodies
}
