package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain collects tracks from multiple providers.
type ProviderChain struct {
	providers []ProviderWithMetadata
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers []ProviderWithMetadata) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// Tracks asks every provider in order and concatenates the results.
// A failing provider is skipped, invalid tracks are dropped, and a track id
// seen from an earlier provider is not repeated.
// It fails only when no provider yields a track.
func (c *ProviderChain) Tracks(ctx context.Context) ([]track.Track, error) {
	var all []track.Track
	seen := make(map[string]bool)

	for i, pm := range c.providers {
		zlog.Debug().Msgf("catalog: loading provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		tracks, err := pm.Provider.Tracks(ctx)
		if err != nil {
			zlog.Warn().Msgf("catalog: provider failed, skipping: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		added := 0
		for _, t := range tracks {
			if err := t.Validate(); err != nil {
				zlog.Warn().Msgf("catalog: dropping invalid track from %s: %v", pm.DisplayName, err)
				continue
			}
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			all = append(all, t)
			added++
		}

		zlog.Info().Msgf("catalog: provider returned tracks: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, added, len(all))
	}

	if len(all) == 0 {
		return nil, errors.New("all catalog providers failed to return tracks")
	}

	return all, nil
}

// Name returns the chain name.
func (c *ProviderChain) Name() string {
	return "provider_chain"
}
