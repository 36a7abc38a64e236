package catalog

import (
	"context"
	"time"

	"github.com/osa030/tunedeck/internal/domain/track"
)

const sampleAudioURI = "https://www.soundjay.com/misc/sounds/bell-ringing-05.wav"

// sampleTracks are available without any configuration.
var sampleTracks = []track.Track{
	{
		ID:       "1",
		Title:    "Forest Lullaby",
		Artist:   "Nature Sounds",
		Image:    "https://picsum.photos/400/400?random=1",
		URI:      sampleAudioURI,
		Duration: 120 * time.Second,
	},
	{
		ID:       "2",
		Title:    "Peaceful Piano",
		Artist:   "Relaxing Music",
		Image:    "https://picsum.photos/400/400?random=2",
		URI:      sampleAudioURI,
		Duration: 180 * time.Second,
	},
	{
		ID:       "3",
		Title:    "Ocean Waves",
		Artist:   "Nature Collection",
		Image:    "https://picsum.photos/400/400?random=3",
		URI:      sampleAudioURI,
		Duration: 150 * time.Second,
	},
}

// BuiltinProvider serves the sample tracks.
type BuiltinProvider struct{}

// NewBuiltinProvider creates a BuiltinProvider.
func NewBuiltinProvider() *BuiltinProvider {
	return &BuiltinProvider{}
}

// Tracks returns a copy of the sample tracks.
func (p *BuiltinProvider) Tracks(_ context.Context) ([]track.Track, error) {
	result := make([]track.Track, len(sampleTracks))
	copy(result, sampleTracks)
	return result, nil
}

// Name returns the provider name.
func (p *BuiltinProvider) Name() string {
	return "builtin"
}
