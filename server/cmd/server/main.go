package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/logging"
	"github.com/automoto/physrep/server/core"
	"github.com/automoto/physrep/shared/leveldata"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	addr := flag.String("addr", config.Origin.Addr, "Listen address")
	transport := flag.String("transport", config.Origin.Transport, "Transport: ws, udp or kcp")
	tickRate := flag.Int("tickrate", config.Origin.TickRate, "Simulation tick rate (ticks per second)")
	arena := flag.String("arena", config.Origin.Arena, "Embedded arena name or path to a .tmx file")
	name := flag.String("name", config.Origin.Name, "Origin display name")
	logLevel := flag.String("loglevel", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	logging.Init(*logLevel)

	if !config.ValidTransport(*transport) {
		logging.Error("unknown transport", "transport", *transport)
		os.Exit(2)
	}
	if *tickRate <= 0 {
		logging.Error("tick rate must be positive", "tickrate", *tickRate)
		os.Exit(2)
	}
	config.Origin.Addr = *addr
	config.Origin.Transport = *transport
	config.Origin.TickRate = *tickRate
	config.Origin.Arena = *arena
	config.Origin.Name = *name

	data, err := leveldata.Resolve(*arena)
	if err != nil {
		logging.Error("failed to load arena", "err", err)
		os.Exit(1)
	}

	server := core.NewServer(core.OptionsFromConfig())
	server.LoadArena(data)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("server error", "err", err)
		os.Exit(1)
	}
	logging.Info("origin stopped")
}
