// Package catalog provides the tracks a session can queue and play.
package catalog

import (
	"context"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Provider supplies catalog tracks.
// Implementations can read them from different sources
// (e.g., built-in samples, a local file, a Spotify playlist).
type Provider interface {
	// Tracks returns every track the provider offers, in provider order.
	Tracks(ctx context.Context) ([]track.Track, error)

	// Name returns the provider type (used in config).
	Name() string
}

// SpotifyClient defines the Spotify operations needed by the spotify provider.
type SpotifyClient interface {
	GetPlaylistTracks(ctx context.Context, playlistURL string) ([]track.Track, error)
}

// TrackResolver looks up single tracks that are not in the catalog.
type TrackResolver interface {
	// Resolve returns the track for ref. It reports false, without error,
	// for refs it does not handle.
	Resolve(ctx context.Context, ref string) (track.Track, bool, error)
}
