package config

import (
	"encoding/json"
	"fmt"

	"github.com/quasilyte/gdata"
)

const settingsKey = "replication"

// SettingsStore persists observer replication settings between runs.
type SettingsStore struct {
	manager *gdata.Manager
}

// OpenSettings opens the per-user settings store for appName.
func OpenSettings(appName string) (*SettingsStore, error) {
	m, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	return &SettingsStore{manager: m}, nil
}

// Load returns the saved replication settings. It returns false when none
// have been saved yet.
func (s *SettingsStore) Load() (ReplicationConfig, bool, error) {
	data, err := s.manager.LoadItem(settingsKey)
	if err != nil {
		return ReplicationConfig{}, false, fmt.Errorf("load settings: %w", err)
	}
	if data == nil {
		return ReplicationConfig{}, false, nil
	}
	cfg, err := DecodeReplication(data)
	if err != nil {
		return ReplicationConfig{}, false, err
	}
	return cfg, true, nil
}

// Save stores the replication settings.
func (s *SettingsStore) Save(cfg ReplicationConfig) error {
	data, err := EncodeReplication(cfg)
	if err != nil {
		return err
	}
	if err := s.manager.SaveItem(settingsKey, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// EncodeReplication serializes settings for storage.
func EncodeReplication(cfg ReplicationConfig) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return data, nil
}

// DecodeReplication parses stored settings. Missing fields keep their
// defaults and the result is validated.
func DecodeReplication(data []byte) (ReplicationConfig, error) {
	cfg := DefaultReplication()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ReplicationConfig{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ReplicationConfig{}, fmt.Errorf("stored settings: %w", err)
	}
	return cfg, nil
}
