// Package config decodes the host-facing TOML configuration for a rudp
// listener into rudp.Tunables, and optionally watches it for changes
// (SPEC_FULL.md §11.2; grounded on dtn7-dtn7-gold/cmd/dtnd/configuration.go's
// tomlConfig decode pattern).
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/SonicFreak94/rudp"
)

// tomlConfig mirrors the section layout dtn7-dtn7-gold uses: one struct
// per TOML table, field names matched case-insensitively unless a tag
// says otherwise.
type tomlConfig struct {
	Reliability reliabilityConf
	Logging     loggingConf
}

// reliabilityConf is the TOML shape of rudp.Tunables.
type reliabilityConf struct {
	AgeThresholdMs   int `toml:"age-threshold-ms"`
	RTTBufferSize    int `toml:"rtt-buffer-size"`
	InitialRTTMs     int `toml:"initial-rtt-ms"`
	RetransmitPaceMs int `toml:"retransmit-pace-ms"`
}

// loggingConf describes the Logging configuration block.
type loggingConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
}

// Config is the decoded, ready-to-use form of a rudp host's TOML file.
type Config struct {
	Tunables     rudp.Tunables
	LogLevel     string
	ReportCaller bool
}

// Load reads and decodes path, falling back to rudp.DefaultTunables for
// any [reliability] field left at its TOML zero value.
func Load(path string) (Config, error) {
	var raw tomlConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Config{}, errors.Wrapf(err, "config: decode %s", path)
	}

	return fromToml(raw), nil
}

func fromToml(raw tomlConfig) Config {
	t := rudp.DefaultTunables()

	if raw.Reliability.AgeThresholdMs > 0 {
		t.AgeThreshold = time.Duration(raw.Reliability.AgeThresholdMs) * time.Millisecond
	}
	if raw.Reliability.RTTBufferSize > 0 {
		t.RTTBufferSize = raw.Reliability.RTTBufferSize
	}
	if raw.Reliability.InitialRTTMs > 0 {
		t.InitialRTT = time.Duration(raw.Reliability.InitialRTTMs) * time.Millisecond
	}
	if raw.Reliability.RetransmitPaceMs > 0 {
		t.RetransmitPaceMs = raw.Reliability.RetransmitPaceMs
	}

	level := raw.Logging.Level
	if level == "" {
		level = "info"
	}

	return Config{
		Tunables:     t,
		LogLevel:     level,
		ReportCaller: raw.Logging.ReportCaller,
	}
}
