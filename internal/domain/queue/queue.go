// Package queue provides the ordered playback queue.
package queue

import (
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Entry is one slot in the queue.
// Key identifies the slot, so the same track queued twice stays distinguishable.
type Entry struct {
	Key   string
	Track track.Track
}

// NewEntry wraps a track in a freshly keyed entry.
func NewEntry(t track.Track) Entry {
	return Entry{Key: uuid.New().String(), Track: t}
}

// Queue holds an ordered sequence of entries.
// Track ids are not required to be unique.
type Queue struct {
	entries []Entry
}

// New creates a queue containing the given tracks in order.
func New(tracks ...track.Track) *Queue {
	q := &Queue{entries: make([]Entry, 0, len(tracks))}
	q.Add(tracks...)
	return q
}

// FromEntries creates a queue from existing entries, keeping their keys.
// Entries without a key get a new one.
func FromEntries(entries []Entry) *Queue {
	q := &Queue{entries: make([]Entry, 0, len(entries))}
	q.Append(entries...)
	return q
}

// Add appends tracks and returns the created entries.
func (q *Queue) Add(tracks ...track.Track) []Entry {
	added := make([]Entry, len(tracks))
	for i, t := range tracks {
		added[i] = NewEntry(t)
	}
	q.entries = append(q.entries, added...)
	return added
}

// Append appends existing entries.
func (q *Queue) Append(entries ...Entry) {
	for _, e := range entries {
		if e.Key == "" {
			e.Key = uuid.New().String()
		}
		q.entries = append(q.entries, e)
	}
}

// RemoveAt removes the entry at index.
// Returns false if index is out of bounds.
func (q *Queue) RemoveAt(index int) (Entry, bool) {
	if index < 0 || index >= len(q.entries) {
		return Entry{}, false
	}
	removed := q.entries[index]
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	return removed, true
}

// RemoveKey removes the entry with the given key and returns its former index.
func (q *Queue) RemoveKey(key string) (int, bool) {
	index := q.IndexOfKey(key)
	if index < 0 {
		return -1, false
	}
	q.RemoveAt(index)
	return index, true
}

// At returns the entry at index.
func (q *Queue) At(index int) (Entry, bool) {
	if index < 0 || index >= len(q.entries) {
		return Entry{}, false
	}
	return q.entries[index], true
}

// IndexOfID returns the index of the first entry holding the track id, or -1.
func (q *Queue) IndexOfID(id string) int {
	for i, e := range q.entries {
		if e.Track.ID == id {
			return i
		}
	}
	return -1
}

// IndexOfKey returns the index of the entry with the key, or -1.
func (q *Queue) IndexOfKey(key string) int {
	if key == "" {
		return -1
	}
	for i, e := range q.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// Entries returns a copy of all entries.
func (q *Queue) Entries() []Entry {
	result := make([]Entry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Tracks returns a copy of the tracks in queue order.
func (q *Queue) Tracks() []track.Track {
	result := make([]track.Track, len(q.entries))
	for i, e := range q.entries {
		result[i] = e.Track
	}
	return result
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// IsEmpty returns true if the queue has no entries.
func (q *Queue) IsEmpty() bool {
	return len(q.entries) == 0
}

// Clone returns an independent copy of the queue.
func (q *Queue) Clone() *Queue {
	return &Queue{entries: q.Entries()}
}

// ShufflePinned returns a new queue in which the entry at pinned keeps its
// index and every other entry is randomly permuted around it.
// An out-of-range pinned index shuffles everything.
func (q *Queue) ShufflePinned(pinned int, rng *rand.Rand) *Queue {
	if pinned < 0 || pinned >= len(q.entries) {
		all := q.Entries()
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		return &Queue{entries: all}
	}

	others := make([]Entry, 0, len(q.entries)-1)
	for i, e := range q.entries {
		if i != pinned {
			others = append(others, e)
		}
	}
	rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })

	result := make([]Entry, 0, len(q.entries))
	result = append(result, others[:pinned]...)
	result = append(result, q.entries[pinned])
	result = append(result, others[pinned:]...)
	return &Queue{entries: result}
}
