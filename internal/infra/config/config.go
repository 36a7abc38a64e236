// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Provider types understood by the catalog.
const (
	ProviderBuiltin = "builtin"
	ProviderFile    = "file"
	ProviderSpotify = "spotify"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Playback PlaybackConfig          `yaml:"playback"`
	Media    MediaConfig             `yaml:"media"`
	Catalog  CatalogConfig           `yaml:"catalog"`
	Store    StoreConfig             `yaml:"store"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Required on mutating calls when set
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	TickIntervalMs     int    `yaml:"tick_interval_ms" default:"1000" validate:"gte=50,lte=60000"`
	RestartThresholdMs int    `yaml:"restart_threshold_ms" default:"5000" validate:"gte=0,lte=60000"`
	EventBuffer        int    `yaml:"event_buffer" default:"16" validate:"gte=1,lte=4096"`
	Repeat             string `yaml:"repeat" default:"off" validate:"oneof=off all one"`
	Shuffle            bool   `yaml:"shuffle"`
}

// TickInterval returns the tick interval as a duration.
func (p PlaybackConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalMs) * time.Millisecond
}

// RestartThreshold returns the skip-previous restart threshold as a duration.
func (p PlaybackConfig) RestartThreshold() time.Duration {
	return time.Duration(p.RestartThresholdMs) * time.Millisecond
}

// MediaConfig represents media backend configuration.
type MediaConfig struct {
	Backend       string             `yaml:"backend" default:"simulated" validate:"oneof=simulated"`
	LoadLatencyMs int                `yaml:"load_latency_ms" validate:"gte=0,lte=60000"`
	Session       MediaSessionConfig `yaml:"session"`
}

// LoadLatency returns the simulated load latency as a duration.
func (m MediaConfig) LoadLatency() time.Duration {
	return time.Duration(m.LoadLatencyMs) * time.Millisecond
}

// MediaSessionConfig represents the audio session requested at startup.
// Pointer fields default to true when omitted.
type MediaSessionConfig struct {
	StaysActiveInBackground *bool  `yaml:"stays_active_in_background" default:"true"`
	PlaysInSilentMode       *bool  `yaml:"plays_in_silent_mode" default:"true"`
	DuckOthers              *bool  `yaml:"duck_others" default:"true"`
	PlayThroughEarpiece     bool   `yaml:"play_through_earpiece"`
	InterruptionMode        string `yaml:"interruption_mode" default:"do_not_mix" validate:"oneof=mix_with_others do_not_mix duck_others"`
}

// CatalogConfig represents the track catalog configuration.
type CatalogConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single catalog provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=builtin file spotify"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// StoreConfig represents session persistence configuration.
type StoreConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"` // Empty means the XDG data directory
	SaveDebounceMs int    `yaml:"save_debounce_ms" default:"500" validate:"gte=0,lte=60000"`
}

// SaveDebounce returns the save debounce as a duration.
func (s StoreConfig) SaveDebounce() time.Duration {
	return time.Duration(s.SaveDebounceMs) * time.Millisecond
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are only required when a spotify catalog provider is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// HasCredentials reports whether the Spotify API can be called.
func (s SpotifyConfig) HasCredentials() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// LoadIncomplete reads the config file without validating it.
// It serves tools that run before the config is complete, such as the
// Spotify auth command that produces the missing refresh token.
// A missing file yields the defaults.
func LoadIncomplete(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = []byte("{}")
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return decode(data)
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// The sample tracks are always available when nothing else is configured
	if len(cfg.Catalog.Providers) == 0 {
		cfg.Catalog.Providers = []ProviderConfig{{Type: ProviderBuiltin, DisplayName: "Samples"}}
	}
	return &cfg, nil
}

// SpotifyPlaylists returns the playlist_url of every spotify provider, in order.
func (c *Config) SpotifyPlaylists() []string {
	var urls []string
	for _, p := range c.Catalog.Providers {
		if p.Type != ProviderSpotify {
			continue
		}
		if url, _ := p.Settings["playlist_url"].(string); url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("TUNEDECK_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("TUNEDECK_DB"); v != "" {
		c.Store.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.UsesProvider(ProviderSpotify) && !c.Spotify.HasCredentials() {
		return errors.New("spotify provider requires client_id, client_secret and refresh_token")
	}

	return nil
}

// UsesProvider reports whether a catalog provider of the given type is configured.
func (c *Config) UsesProvider(providerType string) bool {
	for _, p := range c.Catalog.Providers {
		if p.Type == providerType {
			return true
		}
	}
	return false
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
