package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4*time.Second, cfg.Camera.QuiescenceDelay)
	assert.Equal(t, 55.0, cfg.Camera.DefaultPitch)
	assert.Equal(t, 5, cfg.Camera.BackSamples)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
surface:
  access_token: pk.test
camera:
  quiescence_delay: 2s
  overview_center:
    longitude: -120
    latitude: 38
provider:
  base_url: http://localhost:9000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pk.test", cfg.Surface.AccessToken)
	assert.Equal(t, 2*time.Second, cfg.Camera.QuiescenceDelay)
	assert.Equal(t, -120.0, cfg.Camera.OverviewCenter.Longitude)
	assert.Equal(t, 3.0, cfg.Camera.RotationDegPerSec, "unset values keep defaults")
	assert.Equal(t, 5*time.Minute, cfg.Provider.RefreshInterval)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("camera:\n  back_samples: 0\n  default_pitch: 120\n"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "back_samples")
	assert.Contains(t, err.Error(), "default_pitch")
}
