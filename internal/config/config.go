package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Surface    SurfaceConfig    `yaml:"surface" koanf:"surface"`
	Camera     CameraConfig     `yaml:"camera" koanf:"camera"`
	Clustering ClusteringConfig `yaml:"clustering" koanf:"clustering"`
	Playback   PlaybackConfig   `yaml:"playback" koanf:"playback"`
	Provider   ProviderConfig   `yaml:"provider" koanf:"provider"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Port           int      `yaml:"port" koanf:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
}

// SurfaceConfig configures the rendering surface connection
type SurfaceConfig struct {
	AccessToken   string        `yaml:"access_token" koanf:"access_token"`
	FrameInterval time.Duration `yaml:"frame_interval" koanf:"frame_interval"`
	TileSize      int           `yaml:"tile_size" koanf:"tile_size"`
}

// CameraConfig holds camera director timings and default poses
type CameraConfig struct {
	QuiescenceDelay   time.Duration `yaml:"quiescence_delay" koanf:"quiescence_delay"`
	RotationDegPerSec float64       `yaml:"rotation_deg_per_sec" koanf:"rotation_deg_per_sec"`
	OverviewCenter    LngLat        `yaml:"overview_center" koanf:"overview_center"`
	OverviewZoom      float64       `yaml:"overview_zoom" koanf:"overview_zoom"`
	FocusZoom         float64       `yaml:"focus_zoom" koanf:"focus_zoom"`
	DefaultPitch      float64       `yaml:"default_pitch" koanf:"default_pitch"`
	FlightDuration    time.Duration `yaml:"flight_duration" koanf:"flight_duration"`
	BackSamples       int           `yaml:"back_samples" koanf:"back_samples"`
	FitPaddingPx      float64       `yaml:"fit_padding_px" koanf:"fit_padding_px"`
	MaxFitZoom        float64       `yaml:"max_fit_zoom" koanf:"max_fit_zoom"`
}

// ClusteringConfig holds marker grouping parameters
type ClusteringConfig struct {
	BaseCellSize  float64       `yaml:"base_cell_size" koanf:"base_cell_size"`
	ReferenceZoom float64       `yaml:"reference_zoom" koanf:"reference_zoom"`
	MarginPx      float64       `yaml:"margin_px" koanf:"margin_px"`
	CacheTTL      time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
}

// PlaybackConfig holds route playback pacing
type PlaybackConfig struct {
	MsPerKm     float64       `yaml:"ms_per_km" koanf:"ms_per_km"`
	MinDuration time.Duration `yaml:"min_duration" koanf:"min_duration"`
	LookAhead   int           `yaml:"look_ahead" koanf:"look_ahead"`
	Zoom        float64       `yaml:"zoom" koanf:"zoom"`
	Pitch       float64       `yaml:"pitch" koanf:"pitch"`
}

// ProviderConfig points at the journey data provider
type ProviderConfig struct {
	BaseURL         string        `yaml:"base_url" koanf:"base_url"`
	APIKey          string        `yaml:"api_key" koanf:"api_key"`
	Timeout         time.Duration `yaml:"timeout" koanf:"timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval" koanf:"refresh_interval"`
}

// LngLat is a longitude/latitude pair in YAML config
type LngLat struct {
	Longitude float64 `yaml:"longitude" koanf:"longitude"`
	Latitude  float64 `yaml:"latitude" koanf:"latitude"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Surface: SurfaceConfig{
			FrameInterval: 16 * time.Millisecond,
			TileSize:      512,
		},
		Camera: CameraConfig{
			QuiescenceDelay:   4 * time.Second,
			RotationDegPerSec: 3,
			OverviewCenter:    LngLat{Longitude: 0, Latitude: 20},
			OverviewZoom:      1.5,
			FocusZoom:         13,
			DefaultPitch:      55,
			FlightDuration:    2500 * time.Millisecond,
			BackSamples:       5,
			FitPaddingPx:      60,
			MaxFitZoom:        14,
		},
		Clustering: ClusteringConfig{
			BaseCellSize:  2.0,
			ReferenceZoom: 4,
			MarginPx:      64,
			CacheTTL:      time.Minute,
		},
		Playback: PlaybackConfig{
			MsPerKm:     250,
			MinDuration: 8 * time.Second,
			LookAhead:   10,
			Zoom:        13.5,
			Pitch:       60,
		},
		Provider: ProviderConfig{
			Timeout:         10 * time.Second,
			RefreshInterval: 5 * time.Minute,
		},
	}
}

// Load reads a YAML config file on top of the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting. A missing surface access token is not an
// error here: the server still starts and serves the fallback surface.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Surface.FrameInterval <= 0 {
		errs = append(errs, errors.New("surface.frame_interval must be positive"))
	}
	if c.Surface.TileSize <= 0 {
		errs = append(errs, errors.New("surface.tile_size must be positive"))
	}
	if c.Camera.QuiescenceDelay <= 0 {
		errs = append(errs, errors.New("camera.quiescence_delay must be positive"))
	}
	if c.Camera.RotationDegPerSec <= 0 {
		errs = append(errs, errors.New("camera.rotation_deg_per_sec must be positive"))
	}
	if c.Camera.DefaultPitch < 0 || c.Camera.DefaultPitch > 85 {
		errs = append(errs, fmt.Errorf("camera.default_pitch %.1f outside [0, 85]", c.Camera.DefaultPitch))
	}
	if c.Camera.BackSamples < 1 {
		errs = append(errs, errors.New("camera.back_samples must be at least 1"))
	}
	if c.Clustering.BaseCellSize <= 0 {
		errs = append(errs, errors.New("clustering.base_cell_size must be positive"))
	}
	if c.Playback.MsPerKm <= 0 {
		errs = append(errs, errors.New("playback.ms_per_km must be positive"))
	}
	if c.Playback.LookAhead < 1 {
		errs = append(errs, errors.New("playback.look_ahead must be at least 1"))
	}
	if c.Provider.BaseURL != "" && c.Provider.RefreshInterval <= 0 {
		errs = append(errs, errors.New("provider.refresh_interval must be positive when a provider is configured"))
	}

	return errors.Join(errs...)
}
