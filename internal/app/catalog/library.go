package catalog

import (
	"github.com/osa030/tunedeck/internal/domain/track"
)

// Library is an immutable, id-indexed set of catalog tracks.
type Library struct {
	tracks []track.Track
	byID   map[string]int
}

// NewLibrary indexes tracks by id. Later duplicates are ignored.
func NewLibrary(tracks []track.Track) *Library {
	l := &Library{
		tracks: make([]track.Track, 0, len(tracks)),
		byID:   make(map[string]int, len(tracks)),
	}
	for _, t := range tracks {
		if _, ok := l.byID[t.ID]; ok {
			continue
		}
		l.byID[t.ID] = len(l.tracks)
		l.tracks = append(l.tracks, t)
	}
	return l
}

// Get returns the track with the given id.
func (l *Library) Get(id string) (track.Track, bool) {
	i, ok := l.byID[id]
	if !ok {
		return track.Track{}, false
	}
	return l.tracks[i], true
}

// All returns a copy of all tracks in catalog order.
func (l *Library) All() []track.Track {
	result := make([]track.Track, len(l.tracks))
	copy(result, l.tracks)
	return result
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	return len(l.tracks)
}
