// Package config loads the two on-disk JSON settings files spec §6
// describes: networkSettings.json (capture device selection) and
// engine.json (the four optional fight-lifecycle toggles).
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/engine"
)

// NetworkSettings mirrors networkSettings.json.
type NetworkSettings struct {
	SelectedAdapter string `json:"selectedAdapter"`
}

// engineSettingsJSON is the on-disk shape of engine.json; FightTimeoutSec
// is stored in seconds for readability, converted to a time.Duration on
// load.
type engineSettingsJSON struct {
	FightTimeoutSec         *int64 `json:"fightTimeoutSec,omitempty"`
	AutoClearOnTimeout      *bool  `json:"autoClearOnTimeout,omitempty"`
	AutoClearOnServerChange *bool  `json:"autoClearOnServerChange,omitempty"`
	AutoClearOnBossSpawn    *bool  `json:"autoClearOnBossSpawn,omitempty"`
}

// LoadNetworkSettings reads path, returning an empty NetworkSettings
// (selecting the default device) if the file does not exist.
func LoadNetworkSettings(path string) (NetworkSettings, error) {
	var s NetworkSettings

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}

	if err != nil {
		return s, errors.Wrapf(err, "read %s", path)
	}

	if err := json.Unmarshal(raw, &s); err != nil {
		return s, errors.Wrapf(err, "parse %s", path)
	}

	return s, nil
}

// LoadEngineConfig reads path, overlaying any present keys onto
// engine.DefaultConfig(). A missing file yields the defaults unchanged.
func LoadEngineConfig(path string) (engine.Config, error) {
	cfg := engine.DefaultConfig()

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	if err != nil {
		return cfg, errors.Wrapf(err, "read %s", path)
	}

	var j engineSettingsJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}

	if j.FightTimeoutSec != nil {
		cfg.FightTimeout = time.Duration(*j.FightTimeoutSec) * time.Second
	}

	if j.AutoClearOnTimeout != nil {
		cfg.AutoClearOnTimeout = *j.AutoClearOnTimeout
	}

	if j.AutoClearOnServerChange != nil {
		cfg.AutoClearOnServerChange = *j.AutoClearOnServerChange
	}

	if j.AutoClearOnBossSpawn != nil {
		cfg.AutoClearOnBossSpawn = *j.AutoClearOnBossSpawn
	}

	return cfg, nil
}
