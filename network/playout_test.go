package network

import (
	"math"
	"testing"
	"time"

	"github.com/automoto/physrep/shared/messages"
	"github.com/go-gl/mathgl/mgl32"
)

func scenarioBuffer() *SnapshotBuffer {
	b := NewSnapshotBuffer()
	b.Insert(messages.PhysicsSnapshot{TimeMs: 100, Bodies: []messages.BodyEntry{
		{ID: 1, Pose: messages.BodyPose{Rotation: mgl32.QuatIdent()}},
	}})
	b.Insert(messages.PhysicsSnapshot{TimeMs: 250, Bodies: []messages.BodyEntry{
		{ID: 1, Pose: messages.BodyPose{Position: mgl32.Vec3{10, 0, 0}, Rotation: mgl32.QuatIdent()}},
	}})
	return b
}

func TestPlayoutTimeSaturates(t *testing.T) {
	s := NewPlayoutScheduler(DefaultPlayoutDelay)
	tests := []struct {
		estimate, want time.Duration
	}{
		{0, 0},
		{ms(150), 0},
		{ms(200), 0},
		{ms(380), ms(180)},
	}
	for _, tt := range tests {
		if got := s.PlayoutTime(tt.estimate); got != tt.want {
			t.Errorf("PlayoutTime(%v) = %v, want %v", tt.estimate, got, tt.want)
		}
	}
}

func TestScheduleBeforeFirstSnapshot(t *testing.T) {
	b := scenarioBuffer()
	s := NewPlayoutScheduler(DefaultPlayoutDelay)

	_, ok := s.Schedule(b, ms(280)) // playout 80ms, before 100ms
	if ok {
		t.Fatal("expected no bracket before the first snapshot")
	}
	if s.LastSkip() != SkipNoStart {
		t.Errorf("LastSkip = %v, want %v", s.LastSkip(), SkipNoStart)
	}
	if b.Len() != 2 {
		t.Errorf("aborted schedule touched the buffer: len %d", b.Len())
	}
}

func TestScheduleExactlyAtFirstSnapshot(t *testing.T) {
	b := scenarioBuffer()
	s := NewPlayoutScheduler(DefaultPlayoutDelay)

	if _, ok := s.Schedule(b, ms(300)); ok {
		t.Fatal("playout equal to the first snapshot has no predecessor")
	}
}

func TestScheduleBracket(t *testing.T) {
	b := scenarioBuffer()
	s := NewPlayoutScheduler(DefaultPlayoutDelay)

	br, ok := s.Schedule(b, ms(380)) // playout 180ms
	if !ok {
		t.Fatalf("expected a bracket, skip reason %v", s.LastSkip())
	}
	if br.Start.TimeMs != 100 || br.End.TimeMs != 250 {
		t.Fatalf("bracket = [%d, %d], want [100, 250]", br.Start.TimeMs, br.End.TimeMs)
	}
	if want := float32(80.0 / 150.0); math.Abs(float64(br.Fraction-want)) > 1e-6 {
		t.Errorf("Fraction = %v, want %v", br.Fraction, want)
	}
	if math.Abs(float64(br.VelocityScale-0.15)) > 1e-6 {
		t.Errorf("VelocityScale = %v, want 0.15", br.VelocityScale)
	}
	if br.PlayoutTime != ms(180) {
		t.Errorf("PlayoutTime = %v", br.PlayoutTime)
	}
}

func TestScheduleBeyondNewestDoesNotExtrapolate(t *testing.T) {
	b := scenarioBuffer()
	s := NewPlayoutScheduler(DefaultPlayoutDelay)

	if _, ok := s.Schedule(b, ms(500)); ok {
		t.Fatal("expected no bracket past the newest snapshot")
	}
	if s.LastSkip() != SkipNoEnd {
		t.Errorf("LastSkip = %v, want %v", s.LastSkip(), SkipNoEnd)
	}
	if b.Len() != 2 {
		t.Errorf("aborted schedule touched the buffer: len %d", b.Len())
	}
}

func TestScheduleEvictsOlderThanStart(t *testing.T) {
	b := NewSnapshotBuffer()
	for _, ts := range []uint64{100, 250, 400, 550, 700} {
		b.Insert(messages.PhysicsSnapshot{TimeMs: ts})
	}
	s := NewPlayoutScheduler(DefaultPlayoutDelay)

	br, ok := s.Schedule(b, ms(650)) // playout 450 -> bracket [400, 550]
	if !ok {
		t.Fatal("expected bracket")
	}
	if br.Start.TimeMs != 400 || br.End.TimeMs != 550 {
		t.Fatalf("bracket = [%d, %d]", br.Start.TimeMs, br.End.TimeMs)
	}
	if got := bufferTimes(b); !equalTimes(got, []uint64{400, 550, 700}) {
		t.Errorf("buffer after eviction = %v, want [400 550 700]", got)
	}

	// A slightly earlier playout time (estimate jitter) still finds the
	// retained start snapshot.
	br, ok = s.Schedule(b, ms(640))
	if !ok || br.Start.TimeMs != 400 {
		t.Errorf("jittered schedule = %+v, %v", br, ok)
	}
}

func TestBracketDegenerateSpan(t *testing.T) {
	buf := NewSnapshotBuffer()
	buf.Insert(messages.PhysicsSnapshot{TimeMs: 100})
	buf.Insert(messages.PhysicsSnapshot{TimeMs: 100})

	s := NewPlayoutScheduler(0)
	b, ok := s.bracket(buf, 1, ms(100))
	if !ok {
		t.Fatal("expected a bracket over equal-time snapshots")
	}
	if b.Fraction != 0 || b.VelocityScale != 0 {
		t.Errorf("degenerate span gave Fraction %v, VelocityScale %v", b.Fraction, b.VelocityScale)
	}
	if math.IsNaN(float64(b.Fraction)) {
		t.Error("Fraction is NaN")
	}
}

func TestScheduleFractionInRange(t *testing.T) {
	buf := NewSnapshotBuffer()
	for _, ts := range []uint64{0, 100, 200, 300} {
		buf.Insert(messages.PhysicsSnapshot{TimeMs: ts})
	}
	s := NewPlayoutScheduler(0)
	for est := int64(1); est < 300; est += 7 {
		b, ok := s.Schedule(buf, ms(est))
		if !ok {
			t.Fatalf("estimate %dms: no bracket (%v)", est, s.LastSkip())
		}
		if b.Fraction < 0 || b.Fraction > 1 {
			t.Fatalf("estimate %dms: Fraction %v out of range", est, b.Fraction)
		}
		if b.Start.Time() >= b.PlayoutTime || b.PlayoutTime > b.End.Time() {
			t.Fatalf("estimate %dms: playout %v outside [%v, %v]", est, b.PlayoutTime, b.Start.Time(), b.End.Time())
		}
	}
}
