// Package messages defines the replication payloads exchanged between the
// origin and its observers. It has no dependency on donburi or any transport
// so both binaries and the datagram codec can share it.
package messages

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// ObjectID identifies a replicated body on the origin.
type ObjectID uint32

// BodyPose is the replicated state of one body at one instant.
type BodyPose struct {
	Position       mgl32.Vec3
	LinearVelocity mgl32.Vec3 // units per second
	Rotation       mgl32.Quat
}

// BodyEntry pairs a body with its pose inside a snapshot.
type BodyEntry struct {
	ID   ObjectID
	Pose BodyPose
}

// PhysicsSnapshot captures every replicated body at one origin time.
// IDs are unique within a snapshot; entries keep emission order.
type PhysicsSnapshot struct {
	TimeMs uint64
	Bodies []BodyEntry
}

// Time returns the snapshot's origin simulation time.
func (s PhysicsSnapshot) Time() time.Duration {
	return MsToDuration(s.TimeMs)
}

// TimeSample is a sample of the origin's simulation time. It travels on its
// own, separate from snapshots, so clock estimates converge quickly.
type TimeSample struct {
	TimeMs uint64
}

// NewTimeSample builds a sample for the given origin time.
func NewTimeSample(t time.Duration) TimeSample {
	return TimeSample{TimeMs: DurationToMs(t)}
}

// Time returns the sampled origin simulation time.
func (s TimeSample) Time() time.Duration {
	return MsToDuration(s.TimeMs)
}

// DurationToMs converts a simulation time to its wire form. Negative
// durations clamp to zero.
func DurationToMs(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}

// MaxTimeMs is the largest wire time that fits in a time.Duration.
const MaxTimeMs = uint64(math.MaxInt64 / int64(time.Millisecond))

// MsToDuration converts a wire time back to a simulation time, saturating
// at MaxTimeMs.
func MsToDuration(ms uint64) time.Duration {
	if ms > MaxTimeMs {
		ms = MaxTimeMs
	}
	return time.Duration(ms) * time.Millisecond
}
