package core

import (
	"sync"
	"time"
)

// GameLoop drives Server.Tick at a fixed rate.
type GameLoop struct {
	server   *Server
	interval time.Duration
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
	overruns int
}

func NewGameLoop(server *Server, tickRate int) *GameLoop {
	if tickRate < 1 {
		tickRate = 1
	}
	return &GameLoop{
		server:   server,
		interval: time.Second / time.Duration(tickRate),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run ticks until Stop is called. A tick that takes longer than the interval
// is logged; the ticker drops the ticks it missed.
func (g *GameLoop) Run() {
	defer close(g.done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.server.log.Info("game loop started", "interval", g.interval)

	for {
		select {
		case <-g.stopChan:
			g.server.log.Info("game loop stopped", "overruns", g.overruns)
			return
		case <-ticker.C:
			start := time.Now()
			g.server.Tick(g.server.Elapsed())
			if took := time.Since(start); took > g.interval {
				g.overruns++
				g.server.log.Warn("tick overran", "took", took, "interval", g.interval)
			}
		}
	}
}

// Stop ends Run and waits for the current tick to finish. Safe to call more
// than once.
func (g *GameLoop) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
	<-g.done
}
