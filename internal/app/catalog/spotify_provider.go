package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/domain/track"
)

type SpotifyProviderConfig struct {
	PlaylistURL string `yaml:"playlist_url" mapstructure:"playlist_url" validate:"required"`
	Limit       int    `yaml:"limit" mapstructure:"limit" default:"0" validate:"gte=0"` // 0 means the whole playlist
}

// SpotifyProvider serves the tracks of a Spotify playlist.
// The playlist is fetched once and cached.
type SpotifyProvider struct {
	spotify SpotifyClient
	config  *SpotifyProviderConfig

	mu    sync.Mutex
	cache []track.Track
}

// NewSpotifyProvider creates a new SpotifyProvider.
func NewSpotifyProvider(spotify SpotifyClient, settings map[string]any) (*SpotifyProvider, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is not configured")
	}

	var config SpotifyProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("spotify provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("spotify provider validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &SpotifyProvider{
		spotify: spotify,
		config:  &config,
	}, nil
}

// Tracks returns the playlist tracks, truncated to the configured limit.
func (p *SpotifyProvider) Tracks(ctx context.Context) ([]track.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache == nil {
		tracks, err := p.spotify.GetPlaylistTracks(ctx, p.config.PlaylistURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist tracks")
		}
		if p.config.Limit > 0 && len(tracks) > p.config.Limit {
			tracks = tracks[:p.config.Limit]
		}
		p.cache = tracks
	}

	result := make([]track.Track, len(p.cache))
	copy(result, p.cache)
	return result, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}

// SpotifyTrackClient fetches single tracks from Spotify.
type SpotifyTrackClient interface {
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
}

// SpotifyResolver resolves spotify:track: URIs and open.spotify.com track URLs.
type SpotifyResolver struct {
	spotify SpotifyTrackClient
}

// NewSpotifyResolver creates a resolver backed by client.
func NewSpotifyResolver(client SpotifyTrackClient) *SpotifyResolver {
	return &SpotifyResolver{spotify: client}
}

// Resolve fetches the track when ref is a Spotify track reference.
func (r *SpotifyResolver) Resolve(ctx context.Context, ref string) (track.Track, bool, error) {
	if !IsSpotifyTrackRef(ref) {
		return track.Track{}, false, nil
	}
	t, err := r.spotify.GetTrack(ctx, ref)
	if err != nil {
		return track.Track{}, true, errors.Wrapf(err, "failed to resolve %s", ref)
	}
	zlog.Debug().Msgf("spotify resolver: %s -> %s", ref, t.Label())
	return *t, true, nil
}

// IsSpotifyTrackRef reports whether ref names a single Spotify track.
func IsSpotifyTrackRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "spotify:track:") {
		return len(ref) > len("spotify:track:")
	}
	return strings.Contains(ref, "open.spotify.com/") && strings.Contains(ref, "/track/")
}
