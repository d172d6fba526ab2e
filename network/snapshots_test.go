package network

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/automoto/physrep/shared/messages"
)

func snap(timeMs uint64) messages.PhysicsSnapshot {
	return messages.PhysicsSnapshot{TimeMs: timeMs}
}

func bufferTimes(b *SnapshotBuffer) []uint64 {
	out := make([]uint64, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		s, _ := b.At(i)
		out = append(out, s.TimeMs)
	}
	return out
}

func equalTimes(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSnapshotBufferOutOfOrderInsert(t *testing.T) {
	b := NewSnapshotBuffer()
	for _, ts := range []uint64{200, 100, 300} {
		b.Insert(snap(ts))
	}
	if got := bufferTimes(b); !equalTimes(got, []uint64{100, 200, 300}) {
		t.Fatalf("order = %v, want [100 200 300]", got)
	}
}

func TestSnapshotBufferSearch(t *testing.T) {
	b := NewSnapshotBuffer()
	for _, ts := range []uint64{100, 200, 300} {
		b.Insert(snap(ts))
	}

	tests := []struct {
		at   time.Duration
		want int
	}{
		{ms(0), 0},
		{ms(100), 0},
		{ms(150), 1},
		{ms(200), 1},
		{ms(299), 2},
		{ms(300), 2},
		{ms(301), 3},
	}
	for _, tt := range tests {
		if got := b.Search(tt.at); got != tt.want {
			t.Errorf("Search(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
}

func TestSnapshotBufferEqualTimesKept(t *testing.T) {
	b := NewSnapshotBuffer()
	first := messages.PhysicsSnapshot{TimeMs: 100, Bodies: []messages.BodyEntry{{ID: 1}}}
	second := messages.PhysicsSnapshot{TimeMs: 100, Bodies: []messages.BodyEntry{{ID: 2}}}
	b.Insert(first)
	b.Insert(second)

	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	s0, _ := b.At(0)
	s1, _ := b.At(1)
	if s0.Bodies[0].ID != 2 || s1.Bodies[0].ID != 1 {
		t.Errorf("equal-time snapshot not inserted at first matching index")
	}
}

func TestSnapshotBufferAnyPermutationSorts(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 100; trial++ {
		n := rng.Intn(40)
		times := make([]uint64, n)
		for i := range times {
			times[i] = uint64(rng.Intn(60)) * 10
		}

		b := NewSnapshotBuffer()
		for _, i := range rng.Perm(n) {
			b.Insert(snap(times[i]))
		}

		sorted := append([]uint64(nil), times...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		if got := bufferTimes(b); !equalTimes(got, sorted) {
			t.Fatalf("trial %d: buffer %v, want %v", trial, got, sorted)
		}

		for atMs := uint64(0); atMs <= 610; atMs += 5 {
			want := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= atMs })
			if got := b.Search(messages.MsToDuration(atMs)); got != want {
				t.Fatalf("trial %d: Search(%d) = %d, want %d", trial, atMs, got, want)
			}
		}
	}
}

func TestSnapshotBufferEvictBefore(t *testing.T) {
	b := NewSnapshotBuffer()
	for _, ts := range []uint64{10, 20, 30, 40, 50} {
		b.Insert(snap(ts))
	}

	b.EvictBefore(2)
	if got := bufferTimes(b); !equalTimes(got, []uint64{30, 40, 50}) {
		t.Fatalf("after EvictBefore(2): %v", got)
	}

	b.EvictBefore(0)
	b.EvictBefore(-4)
	if b.Len() != 3 {
		t.Fatalf("non-positive eviction changed length to %d", b.Len())
	}

	b.EvictBefore(1)
	if got := bufferTimes(b); !equalTimes(got, []uint64{40, 50}) {
		t.Fatalf("after EvictBefore(1): %v", got)
	}

	b.EvictBefore(10)
	if b.Len() != 0 {
		t.Fatalf("EvictBefore past end left %d entries", b.Len())
	}
}

func TestSnapshotBufferCap(t *testing.T) {
	b := NewSnapshotBuffer()
	for i := 0; i < MaxBufferedSnapshots+10; i++ {
		b.Insert(snap(uint64(i)))
	}
	if b.Len() != MaxBufferedSnapshots {
		t.Fatalf("Len = %d, want %d", b.Len(), MaxBufferedSnapshots)
	}
	oldest, newest, ok := b.Span()
	if !ok || oldest != ms(10) || newest != ms(int64(MaxBufferedSnapshots+9)) {
		t.Errorf("Span = %v..%v, %v", oldest, newest, ok)
	}
}

func TestSnapshotBufferAtOutOfRange(t *testing.T) {
	b := NewSnapshotBuffer()
	if _, ok := b.At(0); ok {
		t.Error("At(0) on empty buffer reported ok")
	}
	if _, _, ok := b.Span(); ok {
		t.Error("Span on empty buffer reported ok")
	}
}
