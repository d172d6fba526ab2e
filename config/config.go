// Package config holds the tunables for the origin and observer binaries.
// Defaults live in package-level structs; binaries overlay environment
// variables and then command-line flags on top of them.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ReplicationConfig contains the replication cadence and playout tunables.
// These four values are the only replication settings exposed to operators.
type ReplicationConfig struct {
	// ClockSampleInterval is how often the origin emits a time sample.
	ClockSampleInterval time.Duration `env:"PHYSREP_CLOCK_SAMPLE_INTERVAL" json:"clockSampleInterval"`
	// SnapshotInterval is how often the origin broadcasts a body snapshot.
	SnapshotInterval time.Duration `env:"PHYSREP_SNAPSHOT_INTERVAL" json:"snapshotInterval"`
	// PlayoutDelay is subtracted from the clock estimate to get the playout
	// time. Larger values absorb more jitter and loss at the cost of latency.
	PlayoutDelay time.Duration `env:"PHYSREP_PLAYOUT_DELAY" json:"playoutDelay"`
	// ClockWindow is the number of time samples averaged by the estimator.
	ClockWindow int `env:"PHYSREP_CLOCK_WINDOW" json:"clockWindow"`
}

// OriginConfig contains origin binary settings.
type OriginConfig struct {
	Addr      string `env:"PHYSREP_ORIGIN_ADDR"`
	Transport string `env:"PHYSREP_ORIGIN_TRANSPORT"`
	Name      string `env:"PHYSREP_ORIGIN_NAME"`
	TickRate  int    `env:"PHYSREP_ORIGIN_TICKRATE"`
	Arena     string `env:"PHYSREP_ORIGIN_ARENA"` // empty = embedded default arena
	MaxPeers  int    `env:"PHYSREP_ORIGIN_MAX_PEERS"`
}

// ObserverConfig contains observer binary settings.
type ObserverConfig struct {
	Addr      string        `env:"PHYSREP_OBSERVER_ADDR"`
	Transport string        `env:"PHYSREP_OBSERVER_TRANSPORT"`
	Name      string        `env:"PHYSREP_OBSERVER_NAME"`
	FrameRate int           `env:"PHYSREP_OBSERVER_FRAMERATE"`
	LogEvery  time.Duration `env:"PHYSREP_OBSERVER_LOG_EVERY"`
}

// Transport names accepted by both binaries.
const (
	TransportWebSocket = "ws"
	TransportUDP       = "udp"
	TransportKCP       = "kcp"
)

// Version is exchanged in Subscribe so mismatched binaries are refused.
const Version = "1"

var (
	Replication ReplicationConfig
	Origin      OriginConfig
	Observer    ObserverConfig
)

func init() {
	Replication = DefaultReplication()

	Origin = OriginConfig{
		Addr:      ":7373",
		Transport: TransportWebSocket,
		Name:      "physrep origin",
		TickRate:  60,
		MaxPeers:  64,
	}

	Observer = ObserverConfig{
		Addr:      "localhost:7373",
		Transport: TransportWebSocket,
		Name:      "observer",
		FrameRate: 60,
		LogEvery:  time.Second,
	}
}

// DefaultReplication returns the reference cadence: samples every 100ms,
// snapshots every 150ms, 200ms playout delay, 30-sample clock window.
func DefaultReplication() ReplicationConfig {
	return ReplicationConfig{
		ClockSampleInterval: 100 * time.Millisecond,
		SnapshotInterval:    150 * time.Millisecond,
		PlayoutDelay:        200 * time.Millisecond,
		ClockWindow:         30,
	}
}

// Validate reports settings the replication pipeline cannot run with.
func (c ReplicationConfig) Validate() error {
	var errs []error
	if c.ClockSampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("clock sample interval must be positive, got %v", c.ClockSampleInterval))
	}
	if c.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("snapshot interval must be positive, got %v", c.SnapshotInterval))
	}
	if c.PlayoutDelay < 0 {
		errs = append(errs, fmt.Errorf("playout delay must not be negative, got %v", c.PlayoutDelay))
	}
	if c.ClockWindow < 1 {
		errs = append(errs, fmt.Errorf("clock window must hold at least one sample, got %d", c.ClockWindow))
	}
	return errors.Join(errs...)
}

// ValidTransport reports whether name is a known transport.
func ValidTransport(name string) bool {
	switch name {
	case TransportWebSocket, TransportUDP, TransportKCP:
		return true
	}
	return false
}
