package network

import (
	"github.com/automoto/physrep/shared/messages"
)

// inboxCapacity bounds each inbound queue. At default cadences this holds
// several seconds of traffic.
const inboxCapacity = 256

// ClientState is the connection state of a Source.
type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateError
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// Inbox is everything received since the previous drain.
type Inbox struct {
	Samples   []messages.TimeSample
	Snapshots []messages.PhysicsSnapshot
	Removed   []messages.BodyRemoved
}

// Empty reports whether nothing was received.
func (in Inbox) Empty() bool {
	return len(in.Samples) == 0 && len(in.Snapshots) == 0 && len(in.Removed) == 0
}

// Source delivers replication traffic to the frame loop. Transport
// goroutines fill it; Drain is called once per frame and never blocks.
type Source interface {
	Drain() Inbox
	State() ClientState
	LastError() error
	Close() error
}

// queues holds the bounded inbound channels shared by every transport.
type queues struct {
	samples   chan messages.TimeSample
	snapshots chan messages.PhysicsSnapshot
	removed   chan messages.BodyRemoved
}

func newQueues() queues {
	return queues{
		samples:   make(chan messages.TimeSample, inboxCapacity),
		snapshots: make(chan messages.PhysicsSnapshot, inboxCapacity),
		removed:   make(chan messages.BodyRemoved, inboxCapacity),
	}
}

// push routes a decoded message to its queue. It reports false for message
// types that are not replication traffic and for times past MaxTimeMs.
func (q queues) push(msg any) bool {
	switch m := msg.(type) {
	case messages.TimeSample:
		if m.TimeMs > messages.MaxTimeMs {
			return false
		}
		pushDropOldest(q.samples, m)
	case messages.PhysicsSnapshot:
		if m.TimeMs > messages.MaxTimeMs {
			return false
		}
		pushDropOldest(q.snapshots, m)
	case messages.BodyRemoved:
		pushDropOldest(q.removed, m)
	default:
		return false
	}
	return true
}

func (q queues) drain() Inbox {
	return Inbox{
		Samples:   drainChan(q.samples),
		Snapshots: drainChan(q.snapshots),
		Removed:   drainChan(q.removed),
	}
}

// pushDropOldest sends v, discarding the oldest queued values until it fits.
func pushDropOldest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
