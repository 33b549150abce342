package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadOverridesDefaults(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "rudp.toml")
	contents := `
[reliability]
age-threshold-ms = 2000
rtt-buffer-size = 16

[logging]
level = "debug"
report-caller = true
`
	assert.Nil(os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	assert.Nil(err)
	assert.Equal(2*time.Second, cfg.Tunables.AgeThreshold)
	assert.Equal(16, cfg.Tunables.RTTBufferSize)
	assert.Equal("debug", cfg.LogLevel)
	assert.True(cfg.ReportCaller)

	// unset fields keep rudp.DefaultTunables' values
	assert.Equal(time.Second, cfg.Tunables.InitialRTT)
}

func TestLoadMissingFileErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NotNil(err)
}
