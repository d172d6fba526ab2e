package network

import (
	"time"

	"github.com/automoto/physrep/shared/messages"
)

// DefaultPlayoutDelay is how far behind the origin clock estimate the
// observer plays snapshots back.
const DefaultPlayoutDelay = 200 * time.Millisecond

// SkipReason explains why a frame had no interpolation bracket.
type SkipReason int

const (
	SkipNone SkipReason = iota
	// SkipNoStart means no buffered snapshot precedes the playout time.
	SkipNoStart
	// SkipNoEnd means the playout time is past the newest snapshot.
	SkipNoEnd
)

func (r SkipReason) String() string {
	switch r {
	case SkipNoStart:
		return "no start snapshot"
	case SkipNoEnd:
		return "no end snapshot"
	default:
		return "none"
	}
}

// Bracket is the pair of snapshots surrounding the playout time and the
// blend parameters derived from them.
type Bracket struct {
	PlayoutTime time.Duration
	Start       messages.PhysicsSnapshot
	End         messages.PhysicsSnapshot
	// Fraction is the position of the playout time between Start and End,
	// in [0,1). It is 0 when the snapshots share a timestamp.
	Fraction float32
	// VelocityScale is the bracket span in seconds; it converts per-second
	// velocities into Hermite tangents.
	VelocityScale float32
}

// PlayoutScheduler picks the snapshot bracket for each frame and prunes
// snapshots that no later playout time can need.
type PlayoutScheduler struct {
	delay    time.Duration
	lastSkip SkipReason
}

// NewPlayoutScheduler creates a scheduler with the given playout delay.
func NewPlayoutScheduler(delay time.Duration) *PlayoutScheduler {
	if delay < 0 {
		delay = 0
	}
	return &PlayoutScheduler{delay: delay}
}

// Delay returns the playout delay.
func (s *PlayoutScheduler) Delay() time.Duration {
	return s.delay
}

// PlayoutTime returns estimate minus the playout delay, floored at zero.
func (s *PlayoutScheduler) PlayoutTime(estimate time.Duration) time.Duration {
	if estimate <= s.delay {
		return 0
	}
	return estimate - s.delay
}

// Schedule finds the snapshots on either side of the playout time for the
// clock estimate. When there is no full bracket it reports false and leaves
// the buffer untouched; objects are then frozen rather than extrapolated.
// Otherwise it evicts every snapshot older than the bracket start.
func (s *PlayoutScheduler) Schedule(buf *SnapshotBuffer, estimate time.Duration) (Bracket, bool) {
	playout := s.PlayoutTime(estimate)

	endIndex := buf.Search(playout)
	if endIndex == 0 {
		s.lastSkip = SkipNoStart
		return Bracket{PlayoutTime: playout}, false
	}
	b, ok := s.bracket(buf, endIndex, playout)
	if !ok {
		s.lastSkip = SkipNoEnd
		return b, false
	}
	buf.EvictBefore(endIndex - 1)
	s.lastSkip = SkipNone
	return b, true
}

// bracket builds the bracket ending at endIndex without touching the buffer.
func (s *PlayoutScheduler) bracket(buf *SnapshotBuffer, endIndex int, playout time.Duration) (Bracket, bool) {
	end, ok := buf.At(endIndex)
	if !ok {
		return Bracket{PlayoutTime: playout}, false
	}
	start, ok := buf.At(endIndex - 1)
	if !ok {
		return Bracket{PlayoutTime: playout}, false
	}

	b := Bracket{
		PlayoutTime: playout,
		Start:       start,
		End:         end,
	}
	span := end.Time() - start.Time()
	if span > 0 {
		elapsed := playout - start.Time()
		b.Fraction = float32(elapsed.Seconds() / span.Seconds())
		b.VelocityScale = float32(span.Seconds())
	}
	return b, true
}

// LastSkip reports why the most recent Schedule call found no bracket.
func (s *PlayoutScheduler) LastSkip() SkipReason {
	return s.lastSkip
}
