// Package track provides the Track domain entity.
package track

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Track represents a playable media item with fixed duration and display metadata.
type Track struct {
	ID       string        // Stable unique identifier
	Title    string        // Display title
	Artist   string        // Display artist
	Album    string        // Album name (optional)
	Image    string        // Artwork reference (asset path or URL)
	URI      string        // Locator handed to the media backend
	Duration time.Duration // Total length
}

// Validation errors.
var (
	ErrMissingID       = errors.New("track id is required")
	ErrMissingURI      = errors.New("track uri is required")
	ErrInvalidDuration = errors.New("track duration must not be negative")
)

// Validate checks that the track can be queued and loaded.
func (t *Track) Validate() error {
	if t.ID == "" {
		return ErrMissingID
	}
	if t.URI == "" {
		return errors.Wrapf(ErrMissingURI, "track %s", t.ID)
	}
	if t.Duration < 0 {
		return errors.Wrapf(ErrInvalidDuration, "track %s", t.ID)
	}
	return nil
}

// DurationMs returns the duration in whole milliseconds.
func (t *Track) DurationMs() int64 {
	return t.Duration.Milliseconds()
}

// Label returns "Title - Artist", or just the title when the artist is unknown.
func (t *Track) Label() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Title + " - " + t.Artist
}
