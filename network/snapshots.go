package network

import (
	"sort"
	"time"

	"github.com/automoto/physrep/shared/messages"
)

// MaxBufferedSnapshots caps the buffer so a stalled clock estimate cannot
// grow it without bound. When exceeded the oldest snapshots are dropped.
const MaxBufferedSnapshots = 512

// SnapshotBuffer holds received snapshots ordered by time. Insertion accepts
// any arrival order; entries are never mutated once inserted.
type SnapshotBuffer struct {
	snapshots []messages.PhysicsSnapshot
}

// NewSnapshotBuffer creates an empty buffer.
func NewSnapshotBuffer() *SnapshotBuffer {
	return &SnapshotBuffer{}
}

// Search returns the index of the first snapshot at time t, or the index of
// the first snapshot after t if none matches exactly.
func (b *SnapshotBuffer) Search(t time.Duration) int {
	return sort.Search(len(b.snapshots), func(i int) bool {
		return b.snapshots[i].Time() >= t
	})
}

// Insert places s at its sorted position. A snapshot with the same time as
// an existing one goes in front of it; neither is overwritten.
func (b *SnapshotBuffer) Insert(s messages.PhysicsSnapshot) {
	i := b.Search(s.Time())
	b.snapshots = append(b.snapshots, messages.PhysicsSnapshot{})
	copy(b.snapshots[i+1:], b.snapshots[i:])
	b.snapshots[i] = s

	if over := len(b.snapshots) - MaxBufferedSnapshots; over > 0 {
		b.EvictBefore(over)
	}
}

// EvictBefore drops every snapshot with index below i.
func (b *SnapshotBuffer) EvictBefore(i int) {
	if i <= 0 {
		return
	}
	if i > len(b.snapshots) {
		i = len(b.snapshots)
	}
	n := copy(b.snapshots, b.snapshots[i:])
	clear(b.snapshots[n:])
	b.snapshots = b.snapshots[:n]
}

// At returns the snapshot at index i.
func (b *SnapshotBuffer) At(i int) (messages.PhysicsSnapshot, bool) {
	if i < 0 || i >= len(b.snapshots) {
		return messages.PhysicsSnapshot{}, false
	}
	return b.snapshots[i], true
}

// Len returns the number of buffered snapshots.
func (b *SnapshotBuffer) Len() int {
	return len(b.snapshots)
}

// Span returns the times of the oldest and newest buffered snapshots.
func (b *SnapshotBuffer) Span() (oldest, newest time.Duration, ok bool) {
	if len(b.snapshots) == 0 {
		return 0, 0, false
	}
	return b.snapshots[0].Time(), b.snapshots[len(b.snapshots)-1].Time(), true
}
