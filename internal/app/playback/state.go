// Package playback provides the playback session: a queue, a cursor into it,
// transport state, repeat and shuffle modes, and automatic progression.
package playback

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// RepeatMode controls what happens at the end of a track and of the queue.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota // Stop at the end of the queue
	RepeatAll                   // Wrap from the last entry to the first
	RepeatOne                   // Replay the current track
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows m in the off, all, one cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// Valid reports whether m is a known mode.
func (m RepeatMode) Valid() bool {
	return m >= RepeatOff && m <= RepeatOne
}

// ErrInvalidRepeatMode is returned by ParseRepeatMode for unknown names.
var ErrInvalidRepeatMode = errors.New("invalid repeat mode")

// ParseRepeatMode parses "off", "all" or "one". The empty string means off.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return RepeatOff, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	default:
		return RepeatOff, errors.Wrapf(ErrInvalidRepeatMode, "%q", s)
	}
}

// Snapshot is a consistent, read-only view of the session.
type Snapshot struct {
	CurrentTrack *track.Track
	CurrentIndex int
	Queue        []track.Track
	Position     time.Duration
	Duration     time.Duration
	IsPlaying    bool
	IsLoading    bool
	Repeat       RepeatMode
	Shuffle      bool
}

// Seed is the state a controller starts from. Checkpoint produces one.
type Seed struct {
	Queue        []queue.Entry
	Base         []queue.Entry // unshuffled order; only used when Shuffle is set
	CurrentIndex int
	Position     time.Duration
	Repeat       RepeatMode
	Shuffle      bool
}

// SeedFromTracks builds a seed that selects the first track.
func SeedFromTracks(tracks []track.Track) Seed {
	return Seed{Queue: queue.New(tracks...).Entries()}
}
