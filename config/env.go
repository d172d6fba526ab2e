package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv overlays environment variables onto target. Fields whose variable
// is unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv overlays the environment onto the package-level defaults and
// validates the replication settings.
func LoadEnv() error {
	for _, target := range []any{&Replication, &Origin, &Observer} {
		if err := ParseEnv(target); err != nil {
			return err
		}
	}
	if err := Replication.Validate(); err != nil {
		return fmt.Errorf("replication config: %w", err)
	}
	return nil
}

// ErrStoredSettings marks a failure to read saved settings. The environment
// is still applied when it is returned.
var ErrStoredSettings = errors.New("stored settings")

// SettingsLoader returns previously saved replication settings.
type SettingsLoader interface {
	Load() (ReplicationConfig, bool, error)
}

// LoadWithSettings applies saved replication settings, then overlays the
// environment on top, so environment variables override a saved file. It
// reports whether saved settings were applied. store may be nil.
func LoadWithSettings(store SettingsLoader) (bool, error) {
	var storeErr error
	stored := false
	if store != nil {
		saved, ok, err := store.Load()
		switch {
		case err != nil:
			storeErr = fmt.Errorf("%w: %w", ErrStoredSettings, err)
		case ok:
			Replication = saved
			stored = true
		}
	}
	if err := LoadEnv(); err != nil {
		return stored, err
	}
	return stored, storeErr
}
