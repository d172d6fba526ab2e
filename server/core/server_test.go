package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/shared/leveldata"
	"github.com/automoto/physrep/shared/messages"
)

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) write(_ context.Context, msg any) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return nil
}

func (r *recorder) wait(t *testing.T, pred func([]any) bool) []any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		msgs := append([]any(nil), r.msgs...)
		r.mu.Unlock()
		if pred(msgs) {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for messages")
	return nil
}

func testOptions() Options {
	return Options{
		Name:        "test origin",
		Addr:        "127.0.0.1:0",
		Transport:   config.TransportUDP,
		TickRate:    60,
		MaxPeers:    4,
		Replication: config.DefaultReplication(),
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(testOptions())
	s.LoadArena(boxArena())
	return s
}

func count[T any](msgs []any) int {
	n := 0
	for _, m := range msgs {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

func TestServerTickEmitsOnCadence(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.SpawnBody(leveldata.BodySpawn{X: 60, Y: 60, W: 8, H: 8, VX: 20}); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	if _, err := s.Peers().Add("rec", "test", rec.write, nil); err != nil {
		t.Fatal(err)
	}

	// One simulated second at 60 Hz.
	for i := 1; i <= 60; i++ {
		s.Tick(time.Duration(i) * time.Second / 60)
	}

	// Strict timers at 100/150 ms over 1 s: samples at ~117, 233, ... and
	// snapshots at ~167, 333, ...
	msgs := rec.wait(t, func(msgs []any) bool {
		return count[messages.TimeSample](msgs) >= 8 && count[messages.PhysicsSnapshot](msgs) >= 5
	})
	if n := count[messages.TimeSample](msgs); n > 9 {
		t.Errorf("%d samples in one second", n)
	}
	if n := count[messages.PhysicsSnapshot](msgs); n > 6 {
		t.Errorf("%d snapshots in one second", n)
	}

	var last uint64
	for _, m := range msgs {
		snap, ok := m.(messages.PhysicsSnapshot)
		if !ok {
			continue
		}
		if snap.TimeMs <= last {
			t.Errorf("snapshot times not increasing: %d after %d", snap.TimeMs, last)
		}
		last = snap.TimeMs
		if len(snap.Bodies) != 1 {
			t.Errorf("snapshot has %d bodies", len(snap.Bodies))
		}
	}
}

func TestServerRemoveBodyBroadcastsRemoval(t *testing.T) {
	s := newTestServer(t)
	id, err := s.SpawnBody(leveldata.BodySpawn{X: 60, Y: 60, W: 8, H: 8})
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	if _, err := s.Peers().Add("rec", "test", rec.write, nil); err != nil {
		t.Fatal(err)
	}

	if !s.RemoveBody(id) {
		t.Fatal("RemoveBody returned false")
	}
	if s.RemoveBody(id) {
		t.Error("second RemoveBody returned true")
	}
	s.Tick(time.Millisecond)

	msgs := rec.wait(t, func(msgs []any) bool { return count[messages.BodyRemoved](msgs) == 1 })
	if msgs[0] != (messages.BodyRemoved{ID: id}) {
		t.Errorf("first message = %#v", msgs[0])
	}
	if len(s.Bodies()) != 0 {
		t.Errorf("bodies after removal: %+v", s.Bodies())
	}

	// IDs are not reused.
	next, _ := s.SpawnBody(leveldata.BodySpawn{X: 60, Y: 60, W: 8, H: 8})
	if next <= id {
		t.Errorf("new id %d not greater than removed %d", next, id)
	}
}

func TestServerRespawnsEscapedBodies(t *testing.T) {
	s := NewServer(testOptions())
	// No walls: the body flies out.
	s.LoadArena(&leveldata.ArenaData{Name: "open", Width: 100, Height: 100})
	id, _ := s.SpawnBody(leveldata.BodySpawn{X: 90, Y: 50, W: 4, H: 4, VX: 300})

	s.Tick(100 * time.Millisecond)

	bodies := s.Bodies()
	if len(bodies) != 1 {
		t.Fatalf("got %d bodies, want 1", len(bodies))
	}
	if bodies[0].ID == id {
		t.Error("escaped body kept its id")
	}
	if x := bodies[0].Pose.Position.X(); x != 92 {
		t.Errorf("respawned at x = %v, want spawn center 92", x)
	}
}

func TestSpawnBodyWithoutArena(t *testing.T) {
	s := NewServer(testOptions())
	if _, err := s.SpawnBody(leveldata.BodySpawn{W: 1, H: 1}); err == nil {
		t.Fatal("expected error without an arena")
	}
}

func TestServerAccepted(t *testing.T) {
	s := NewServer(testOptions())
	acc := s.Accepted()
	if acc.ServerName != "test origin" || acc.TickRate != 60 ||
		acc.ClockSampleIntervalMs != 100 || acc.SnapshotIntervalMs != 150 {
		t.Errorf("Accepted = %+v", acc)
	}
}
