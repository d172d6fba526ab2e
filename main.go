package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/physrep/config"
	"github.com/automoto/physrep/logging"
	"github.com/automoto/physrep/network"
	"github.com/automoto/physrep/scenes"
)

const appName = "physrep"

func main() {
	// Saved settings first, so the environment and flags override them.
	store, storeErr := config.OpenSettings(appName)
	var saved config.SettingsLoader
	if storeErr == nil {
		saved = store
	}
	stored, err := config.LoadWithSettings(saved)
	if err != nil && !errors.Is(err, config.ErrStoredSettings) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	settingsErr := errors.Join(storeErr, err)

	addr := flag.String("addr", config.Observer.Addr, "Origin address")
	transport := flag.String("transport", config.Observer.Transport, "Transport: ws, udp or kcp")
	name := flag.String("name", config.Observer.Name, "Observer name sent to the origin")
	frameRate := flag.Int("framerate", config.Observer.FrameRate, "Frames per second")
	logLevel := flag.String("loglevel", "info", "Log level: debug, info, warn or error")
	saveSettings := flag.Bool("save-settings", false, "Store the current replication settings for later runs")
	flag.Parse()

	logging.Init(*logLevel)

	if !config.ValidTransport(*transport) {
		logging.Error("unknown transport", "transport", *transport)
		os.Exit(2)
	}
	if *frameRate <= 0 {
		logging.Error("frame rate must be positive", "framerate", *frameRate)
		os.Exit(2)
	}

	if settingsErr != nil {
		logging.Warn("could not load saved settings", "err", settingsErr)
	} else if stored {
		logging.Info("applied saved replication settings")
	}
	if *saveSettings && store != nil {
		if err := store.Save(config.Replication); err != nil {
			logging.Warn("could not save settings", "err", err)
		} else {
			logging.Info("saved replication settings")
		}
	}

	source, err := connect(*transport, *addr, *name)
	if err != nil {
		logging.Error("failed to connect", "err", err)
		os.Exit(1)
	}
	defer source.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run(ctx, source, *frameRate)
	logging.Info("observer stopped")
}

func connect(transport, addr, name string) (network.Source, error) {
	if transport == config.TransportWebSocket {
		c := network.NewClient()
		c.Connect(addr, config.Version, name)
		return c, nil
	}
	c, err := network.NewDatagramClient(transport, addr)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(config.Version, name); err != nil {
		return nil, err
	}
	return c, nil
}

func run(ctx context.Context, source network.Source, frameRate int) {
	scene := scenes.NewObserverScene(source, config.Replication)
	log := logging.Component("observer")

	ticker := time.NewTicker(time.Second / time.Duration(frameRate))
	defer ticker.Stop()

	start := time.Now()
	lastLog := start
	lastState := source.State()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			scene.Update(now.Sub(start))

			if state := source.State(); state != lastState {
				log.Info("connection state", "state", state.String(), "err", source.LastError())
				lastState = state
			}
			if config.Observer.LogEvery > 0 && now.Sub(lastLog) >= config.Observer.LogEvery {
				lastLog = now
				st := scene.Stats()
				log.Info("replication",
					"estimate", st.Estimate,
					"playout", st.PlayoutTime,
					"buffered", st.Buffered,
					"bodies", st.Bodies,
					"scheduled", st.Scheduled,
					"skip", st.LastSkip.String())
			}
		}
	}
}
