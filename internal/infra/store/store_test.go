package store

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

func entry(key, id string) queue.Entry {
	return queue.Entry{Key: key, Track: track.Track{
		ID:       id,
		Title:    "Title " + id,
		Artist:   "Artist",
		URI:      "https://cdn.example.com/" + id + ".mp3",
		Duration: 90 * time.Second,
	}}
}

func openTest(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(":memory:", 50*time.Millisecond)
	require.NoError(t, err)
	return m
}

func TestLoad_Empty(t *testing.T) {
	m := openTest(t)
	defer m.Close()

	state, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSaveNowAndLoad(t *testing.T) {
	m := openTest(t)
	defer m.Close()

	saved := SessionState{
		Queue:        []queue.Entry{entry("k2", "b"), entry("k1", "a"), entry("k3", "a")},
		Base:         []queue.Entry{entry("k1", "a"), entry("k2", "b"), entry("k3", "a")},
		CurrentIndex: 1,
		Position:     42 * time.Second,
		Repeat:       "all",
		Shuffle:      true,
		SavedAt:      time.UnixMilli(1_700_000_000_000),
	}
	require.NoError(t, m.SaveNow(saved))

	got, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.Queue, got.Queue)
	assert.Equal(t, saved.Base, got.Base)
	assert.Equal(t, 1, got.CurrentIndex)
	assert.Equal(t, 42*time.Second, got.Position)
	assert.Equal(t, "all", got.Repeat)
	assert.True(t, got.Shuffle)
	assert.True(t, saved.SavedAt.Equal(got.SavedAt))
}

func TestSaveNow_Overwrites(t *testing.T) {
	m := openTest(t)
	defer m.Close()

	require.NoError(t, m.SaveNow(SessionState{Queue: []queue.Entry{entry("k1", "a"), entry("k2", "b")}, Repeat: "off"}))
	require.NoError(t, m.SaveNow(SessionState{Queue: []queue.Entry{entry("k3", "c")}, Repeat: "one", CurrentIndex: 0}))

	got, err := m.Load()
	require.NoError(t, err)
	require.Len(t, got.Queue, 1)
	assert.Equal(t, "c", got.Queue[0].Track.ID)
	assert.Empty(t, got.Base)
	assert.Equal(t, "one", got.Repeat)
}

func TestSave_Debounced(t *testing.T) {
	m := openTest(t)
	defer m.Close()

	m.Save(SessionState{Queue: []queue.Entry{entry("k1", "a")}, Repeat: "off"})
	m.Save(SessionState{Queue: []queue.Entry{entry("k2", "b")}, Repeat: "all"})

	got, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, got, "nothing written before the debounce elapses")

	require.Eventually(t, func() bool {
		got, err := m.Load()
		return err == nil && got != nil
	}, 2*time.Second, 10*time.Millisecond)

	got, err = m.Load()
	require.NoError(t, err)
	require.Len(t, got.Queue, 1)
	assert.Equal(t, "b", got.Queue[0].Track.ID)
	assert.Equal(t, "all", got.Repeat)
}

func TestClose_FlushesPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	m, err := Open(path, time.Hour)
	require.NoError(t, err)
	m.Save(SessionState{Queue: []queue.Entry{entry("k1", "a")}, CurrentIndex: 0, Repeat: "off"})
	require.NoError(t, m.Close())

	m, err = Open(path, time.Hour)
	require.NoError(t, err)
	defer m.Close()

	got, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Queue[0].Track.ID)
}

func TestClear(t *testing.T) {
	m := openTest(t)
	defer m.Close()

	require.NoError(t, m.SaveNow(SessionState{Queue: []queue.Entry{entry("k1", "a")}, Repeat: "off"}))
	m.Save(SessionState{Repeat: "all"})
	require.NoError(t, m.Clear())

	got, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClose_WaitsForRunningSave(t *testing.T) {
	var logs bytes.Buffer
	prev := zlog.Logger
	zlog.Logger = zerolog.New(&logs)
	t.Cleanup(func() { zlog.Logger = prev })

	dir := t.TempDir()
	for i := range 20 {
		path := filepath.Join(dir, fmt.Sprintf("session-%d.db", i))
		m, err := Open(path, time.Millisecond)
		require.NoError(t, err)

		m.Save(SessionState{Queue: []queue.Entry{entry("k1", "a")}, Repeat: "all"})
		time.Sleep(time.Duration(i%3) * time.Millisecond)
		require.NoError(t, m.Close())
		require.NoError(t, m.Close())

		m, err = Open(path, time.Hour)
		require.NoError(t, err)
		got, err := m.Load()
		require.NoError(t, err)
		require.NotNil(t, got, "iteration %d", i)
		assert.Equal(t, "all", got.Repeat)
		require.NoError(t, m.Close())
	}

	assert.NotContains(t, logs.String(), "save failed")
}

func TestWritesAfterClose(t *testing.T) {
	m := openTest(t)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.SaveNow(SessionState{Repeat: "off"}), ErrClosed)
	assert.ErrorIs(t, m.Clear(), ErrClosed)
	m.Save(SessionState{Repeat: "off"})
}
