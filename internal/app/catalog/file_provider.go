package catalog

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/tunedeck/internal/domain/track"
)

type FileProviderConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// fileTrack is the on-disk form of a track.
type fileTrack struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	Artist     string `yaml:"artist"`
	Album      string `yaml:"album"`
	Image      string `yaml:"image"`
	URI        string `yaml:"uri"`
	DurationMs int64  `yaml:"duration_ms"`
}

type fileCatalog struct {
	Tracks []fileTrack `yaml:"tracks"`
}

// FileProvider reads tracks from a YAML file.
// The file is read on every call.
type FileProvider struct {
	config *FileProviderConfig
}

// NewFileProvider creates a new FileProvider.
func NewFileProvider(settings map[string]any) (*FileProvider, error) {
	var config FileProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("file provider validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &FileProvider{config: &config}, nil
}

// Tracks parses the configured file.
func (p *FileProvider) Tracks(_ context.Context) ([]track.Track, error) {
	data, err := os.ReadFile(p.config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog file %s", p.config.Path)
	}

	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse catalog file %s", p.config.Path)
	}

	tracks := make([]track.Track, 0, len(fc.Tracks))
	for _, ft := range fc.Tracks {
		tracks = append(tracks, track.Track{
			ID:       ft.ID,
			Title:    ft.Title,
			Artist:   ft.Artist,
			Album:    ft.Album,
			Image:    ft.Image,
			URI:      ft.URI,
			Duration: time.Duration(ft.DurationMs) * time.Millisecond,
		})
	}
	return tracks, nil
}

// Name returns the provider name.
func (p *FileProvider) Name() string {
	return "file"
}
