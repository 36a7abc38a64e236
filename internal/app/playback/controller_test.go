package playback

import (
	"context"
	"math/rand/v2"
	"testing"
	"testing/synctest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedeck/internal/app/media"
	"github.com/osa030/tunedeck/internal/domain/track"
)

var (
	trackA = track.Track{ID: "1", Title: "Forest Lullaby", Artist: "Nature Sounds", URI: "asset://a", Duration: 120 * time.Second}
	trackB = track.Track{ID: "2", Title: "Peaceful Piano", Artist: "Relaxing Music", URI: "asset://b", Duration: 180 * time.Second}
	trackC = track.Track{ID: "3", Title: "Ocean Waves", Artist: "Nature Collection", URI: "asset://c", Duration: 150 * time.Second}
)

func newTestController(t *testing.T, seed Seed) (*Controller, *media.Mock) {
	t.Helper()
	m := media.NewMock()
	c := NewController(Config{Rand: rand.New(rand.NewPCG(1, 2))}, m, seed)
	t.Cleanup(c.Close)
	return c, m
}

func sampleSeed() Seed {
	return SeedFromTracks([]track.Track{trackA, trackB, trackC})
}

func manyTracks(n int) []track.Track {
	result := make([]track.Track, n)
	for i := range result {
		id := string(rune('a' + i))
		result[i] = track.Track{ID: id, Title: "Track " + id, URI: "asset://" + id, Duration: time.Minute}
	}
	return result
}

func trackIDs(tracks []track.Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

func TestNewController_InitialState(t *testing.T) {
	c, m := newTestController(t, sampleSeed())

	s := c.Snapshot()
	require.NotNil(t, s.CurrentTrack)
	assert.Equal(t, "1", s.CurrentTrack.ID)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.False(t, s.IsPlaying)
	assert.False(t, s.IsLoading)
	assert.Equal(t, time.Duration(0), s.Position)
	assert.Equal(t, 120*time.Second, s.Duration)
	assert.Equal(t, RepeatOff, s.Repeat)
	assert.False(t, s.Shuffle)
	assert.Equal(t, []string{"1", "2", "3"}, trackIDs(s.Queue))
	assert.Empty(t, m.Calls(), "nothing is loaded until playback starts")
}

func TestNewController_EmptyQueue(t *testing.T) {
	c, _ := newTestController(t, Seed{})

	s := c.Snapshot()
	assert.Nil(t, s.CurrentTrack)
	assert.Equal(t, -1, s.CurrentIndex)
	assert.Empty(t, s.Queue)
}

func TestNewController_RestoresPosition(t *testing.T) {
	seed := sampleSeed()
	seed.CurrentIndex = 1
	seed.Position = 30 * time.Second
	seed.Repeat = RepeatAll

	c, _ := newTestController(t, seed)

	s := c.Snapshot()
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, "2", s.CurrentTrack.ID)
	assert.Equal(t, 30*time.Second, s.Position)
	assert.Equal(t, RepeatAll, s.Repeat)
}

func TestController_PlayTrack(t *testing.T) {
	ctx := context.Background()

	t.Run("track in queue moves cursor", func(t *testing.T) {
		c, m := newTestController(t, sampleSeed())

		require.NoError(t, c.PlayTrack(ctx, trackC))

		s := c.Snapshot()
		assert.Equal(t, 2, s.CurrentIndex)
		assert.Equal(t, "3", s.CurrentTrack.ID)
		assert.True(t, s.IsPlaying)
		assert.False(t, s.IsLoading)
		assert.Equal(t, 150*time.Second, s.Duration)
		assert.Equal(t, []string{"asset://c"}, m.LoadedURIs())
		assert.Len(t, m.CallsOf("play"), 1)
	})

	t.Run("track outside queue keeps cursor", func(t *testing.T) {
		c, _ := newTestController(t, sampleSeed())
		require.NoError(t, c.PlayTrack(ctx, trackB))

		outside := track.Track{ID: "x", Title: "Outside", URI: "asset://x", Duration: time.Minute}
		require.NoError(t, c.PlayTrack(ctx, outside))

		s := c.Snapshot()
		assert.Equal(t, 1, s.CurrentIndex)
		assert.Equal(t, "x", s.CurrentTrack.ID)
		assert.Equal(t, time.Minute, s.Duration)
	})

	t.Run("invalid track is rejected", func(t *testing.T) {
		c, m := newTestController(t, sampleSeed())

		err := c.PlayTrack(ctx, track.Track{ID: "y"})

		assert.True(t, errors.Is(err, track.ErrMissingURI))
		assert.Empty(t, m.Calls())
	})
}

func TestController_HoldsAtMostOneHandle(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, sampleSeed())

	require.NoError(t, c.PlayTrack(ctx, trackA))
	require.NoError(t, c.SkipNext(ctx))
	require.NoError(t, c.SkipNext(ctx))
	require.NoError(t, c.SkipPrevious(ctx))

	assert.Equal(t, 1, m.Live())

	ops := []string{}
	for _, call := range m.Calls() {
		if call.Op == "load" || call.Op == "unload" {
			ops = append(ops, call.Op)
		}
	}
	assert.Equal(t, []string{"load", "unload", "load", "unload", "load", "unload", "load"}, ops,
		"the previous handle is released before every load")
}

func TestController_UnloadFailureDoesNotBlockLoad(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, sampleSeed())
	require.NoError(t, c.PlayTrack(ctx, trackA))
	m.SetOpError("unload", errors.New("busy"))

	require.NoError(t, c.SkipNext(ctx))

	s := c.Snapshot()
	assert.Equal(t, "2", s.CurrentTrack.ID)
	assert.True(t, s.IsPlaying)
}

func TestController_LoadFailureKeepsSelection(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, sampleSeed())
	require.NoError(t, c.PlayTrack(ctx, trackA))
	require.NoError(t, c.SeekTo(ctx, 10*time.Second))
	m.SetLoadError("asset://b", errors.New("404"))

	err := c.SkipNext(ctx)

	require.Error(t, err)
	assert.True(t, media.IsLoadError(err))
	s := c.Snapshot()
	assert.Equal(t, "1", s.CurrentTrack.ID)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.False(t, s.IsPlaying)
	assert.False(t, s.IsLoading)
	assert.Equal(t, 0, m.Live())

	// Resume reloads the previous track where it stopped.
	m.Reset()
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, []string{"asset://a"}, m.LoadedURIs())
	s = c.Snapshot()
	assert.True(t, s.IsPlaying)
	assert.Equal(t, 10*time.Second, s.Position)
}

func TestController_PlayFailureLeavesTrackLoaded(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, sampleSeed())
	m.SetOpError("play", errors.New("device lost"))

	err := c.PlayTrack(ctx, trackB)

	require.Error(t, err)
	assert.True(t, media.IsTransportError(err))
	s := c.Snapshot()
	assert.Equal(t, "2", s.CurrentTrack.ID)
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 1, m.Live())
}

func TestController_PauseResume(t *testing.T) {
	ctx := context.Background()

	t.Run("resume loads the selected track", func(t *testing.T) {
		c, m := newTestController(t, sampleSeed())

		require.NoError(t, c.Resume(ctx))

		assert.True(t, c.Snapshot().IsPlaying)
		assert.Equal(t, []string{"asset://a"}, m.LoadedURIs())
	})

	t.Run("pause and resume keep the handle", func(t *testing.T) {
		c, m := newTestController(t, sampleSeed())
		require.NoError(t, c.PlayTrack(ctx, trackA))

		require.NoError(t, c.Pause(ctx))
		assert.False(t, c.Snapshot().IsPlaying)

		require.NoError(t, c.Resume(ctx))
		assert.True(t, c.Snapshot().IsPlaying)
		assert.Len(t, m.CallsOf("load"), 1)
		assert.Len(t, m.CallsOf("pause"), 1)
		assert.Len(t, m.CallsOf("play"), 2)
	})

	t.Run("pause with nothing loaded is safe", func(t *testing.T) {
		c, m := newTestController(t, Seed{})

		assert.NoError(t, c.Pause(ctx))
		assert.Empty(t, m.Calls())
	})

	t.Run("resume with empty queue", func(t *testing.T) {
		c, _ := newTestController(t, Seed{})

		assert.ErrorIs(t, c.Resume(ctx), ErrNoTrack)
	})

	t.Run("pause transport failure keeps playing", func(t *testing.T) {
		c, m := newTestController(t, sampleSeed())
		require.NoError(t, c.PlayTrack(ctx, trackA))
		m.SetOpError("pause", errors.New("device lost"))

		err := c.Pause(ctx)

		assert.True(t, media.IsTransportError(err))
		assert.True(t, c.Snapshot().IsPlaying)
	})
}

func TestController_Stop(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, sampleSeed())
	require.NoError(t, c.PlayTrack(ctx, trackB))
	require.NoError(t, c.SeekTo(ctx, 42*time.Second))

	require.NoError(t, c.Stop(ctx))

	s := c.Snapshot()
	assert.False(t, s.IsPlaying)
	assert.Equal(t, time.Duration(0), s.Position)
	assert.Equal(t, "2", s.CurrentTrack.ID)
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Len(t, m.CallsOf("stop"), 1)
}

func TestController_SeekTo(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, sampleSeed())
	require.NoError(t, c.PlayTrack(ctx, trackA))

	require.NoError(t, c.SeekTo(ctx, 500*time.Second))

	assert.Equal(t, 500*time.Second, c.Snapshot().Position, "seek is not clamped")
	seeks := m.CallsOf("seek")
	require.Len(t, seeks, 1)
	assert.Equal(t, 500*time.Second, seeks[0].Pos)

	empty, _ := newTestController(t, Seed{})
	assert.ErrorIs(t, empty.SeekTo(ctx, time.Second), ErrNoTrack)
}

func TestController_SkipNext(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		start       track.Track
		repeat      RepeatMode
		wantIndex   int
		wantID      string
		wantPlaying bool
		wantLoads   []string
	}{
		{
			name:        "middle advances",
			start:       trackA,
			repeat:      RepeatOff,
			wantIndex:   1,
			wantID:      "2",
			wantPlaying: true,
			wantLoads:   []string{"asset://a", "asset://b"},
		},
		{
			name:        "last with repeat off stops",
			start:       trackC,
			repeat:      RepeatOff,
			wantIndex:   2,
			wantID:      "3",
			wantPlaying: false,
			wantLoads:   []string{"asset://c"},
		},
		{
			name:        "last with repeat all wraps",
			start:       trackC,
			repeat:      RepeatAll,
			wantIndex:   0,
			wantID:      "1",
			wantPlaying: true,
			wantLoads:   []string{"asset://c", "asset://a"},
		},
		{
			name:        "repeat one still advances on manual skip",
			start:       trackA,
			repeat:      RepeatOne,
			wantIndex:   1,
			wantID:      "2",
			wantPlaying: true,
			wantLoads:   []string{"asset://a", "asset://b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestController(t, sampleSeed())
			require.NoError(t, c.SetRepeat(tt.repeat))
			require.NoError(t, c.PlayTrack(ctx, tt.start))

			require.NoError(t, c.SkipNext(ctx))

			s := c.Snapshot()
			assert.Equal(t, tt.wantIndex, s.CurrentIndex)
			assert.Equal(t, tt.wantID, s.CurrentTrack.ID)
			assert.Equal(t, tt.wantPlaying, s.IsPlaying)
			assert.Equal(t, tt.wantLoads, m.LoadedURIs())
		})
	}
}

func TestController_SkipNext_EmptyQueue(t *testing.T) {
	c, _ := newTestController(t, Seed{})

	err := c.SkipNext(context.Background())

	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.False(t, c.Snapshot().IsPlaying)
}

func TestController_SkipNext_EmitsQueueEnded(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, sampleSeed())
	require.NoError(t, c.PlayTrack(ctx, trackC))
	drain(c)

	require.NoError(t, c.SkipNext(ctx))

	assert.Contains(t, drain(c), EventQueueEnded)
}

func TestController_SkipPrevious(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		start     track.Track
		position  time.Duration
		repeat    RepeatMode
		wantIndex int
		wantID    string
		wantLoads int
	}{
		{
			name:      "past threshold restarts",
			start:     trackB,
			position:  6 * time.Second,
			wantIndex: 1,
			wantID:    "2",
			wantLoads: 1,
		},
		{
			name:      "at threshold goes back",
			start:     trackB,
			position:  5 * time.Second,
			wantIndex: 0,
			wantID:    "1",
			wantLoads: 2,
		},
		{
			name:      "early goes back",
			start:     trackC,
			position:  2 * time.Second,
			wantIndex: 1,
			wantID:    "2",
			wantLoads: 2,
		},
		{
			name:      "first with repeat off restarts",
			start:     trackA,
			position:  2 * time.Second,
			repeat:    RepeatOff,
			wantIndex: 0,
			wantID:    "1",
			wantLoads: 1,
		},
		{
			name:      "first with repeat all wraps",
			start:     trackA,
			position:  2 * time.Second,
			repeat:    RepeatAll,
			wantIndex: 2,
			wantID:    "3",
			wantLoads: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestController(t, sampleSeed())
			require.NoError(t, c.SetRepeat(tt.repeat))
			require.NoError(t, c.PlayTrack(ctx, tt.start))
			require.NoError(t, c.SeekTo(ctx, tt.position))

			require.NoError(t, c.SkipPrevious(ctx))

			s := c.Snapshot()
			assert.Equal(t, tt.wantIndex, s.CurrentIndex)
			assert.Equal(t, tt.wantID, s.CurrentTrack.ID)
			assert.Equal(t, time.Duration(0), s.Position)
			assert.True(t, s.IsPlaying)
			assert.Len(t, m.CallsOf("load"), tt.wantLoads)
		})
	}
}

func TestController_AddToQueue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, sampleSeed())
	require.NoError(t, c.PlayTrack(ctx, trackB))

	require.NoError(t, c.AddToQueue(trackA, trackA))

	s := c.Snapshot()
	assert.Equal(t, []string{"1", "2", "3", "1", "1"}, trackIDs(s.Queue), "duplicates are allowed")
	assert.Equal(t, 1, s.CurrentIndex)

	err := c.AddToQueue(trackC, track.Track{ID: "bad"})
	assert.True(t, errors.Is(err, track.ErrMissingURI))
	assert.Len(t, c.Snapshot().Queue, 5, "nothing is added when a track is invalid")
}

func TestController_AddToQueue_EmptyQueueThenResume(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, Seed{})

	require.NoError(t, c.AddToQueue(trackA, trackB))
	assert.Equal(t, -1, c.Snapshot().CurrentIndex)

	require.NoError(t, c.Resume(ctx))

	s := c.Snapshot()
	assert.Equal(t, 0, s.CurrentIndex)
	assert.True(t, s.IsPlaying)
	assert.Equal(t, []string{"asset://a"}, m.LoadedURIs())
}

func TestController_RemoveFromQueue(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		start       track.Track
		repeat      RepeatMode
		remove      int
		wantIndex   int
		wantID      string
		wantPlaying bool
		wantQueue   []string
		failURI     string
	}{
		{
			name:        "before current shifts cursor",
			start:       trackC,
			remove:      0,
			wantIndex:   1,
			wantID:      "3",
			wantPlaying: true,
			wantQueue:   []string{"2", "3"},
		},
		{
			name:        "after current keeps cursor",
			start:       trackA,
			remove:      2,
			wantIndex:   0,
			wantID:      "1",
			wantPlaying: true,
			wantQueue:   []string{"1", "2"},
		},
		{
			name:        "current plays successor",
			start:       trackA,
			remove:      0,
			wantIndex:   0,
			wantID:      "2",
			wantPlaying: true,
			wantQueue:   []string{"2", "3"},
		},
		{
			name:        "current last with repeat all wraps",
			start:       trackC,
			repeat:      RepeatAll,
			remove:      2,
			wantIndex:   0,
			wantID:      "1",
			wantPlaying: true,
			wantQueue:   []string{"1", "2"},
		},
		{
			name:        "current last with repeat off selects new last",
			start:       trackC,
			repeat:      RepeatOff,
			remove:      2,
			wantIndex:   1,
			wantID:      "2",
			wantPlaying: false,
			wantQueue:   []string{"1", "2"},
		},
		{
			name:        "current with failing successor selects successor",
			start:       trackA,
			remove:      0,
			failURI:     trackB.URI,
			wantIndex:   0,
			wantID:      "2",
			wantPlaying: false,
			wantQueue:   []string{"2", "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestController(t, sampleSeed())
			require.NoError(t, c.SetRepeat(tt.repeat))
			require.NoError(t, c.PlayTrack(ctx, tt.start))
			if tt.failURI != "" {
				m.SetLoadError(tt.failURI, errors.New("boom"))
			}

			err := c.RemoveFromQueue(ctx, tt.remove)
			if tt.failURI != "" {
				assert.True(t, media.IsLoadError(err))
			} else {
				require.NoError(t, err)
			}

			s := c.Snapshot()
			assert.Equal(t, tt.wantIndex, s.CurrentIndex)
			require.NotNil(t, s.CurrentTrack)
			assert.Equal(t, tt.wantID, s.CurrentTrack.ID)
			assert.Equal(t, s.Queue[s.CurrentIndex].ID, s.CurrentTrack.ID)
			assert.Equal(t, tt.wantPlaying, s.IsPlaying)
			assert.False(t, s.IsLoading)
			assert.Equal(t, tt.wantQueue, trackIDs(s.Queue))
			assert.Equal(t, time.Duration(0), s.Position)

			restored := NewController(Config{}, media.NewMock(), c.Checkpoint())
			defer restored.Close()
			assert.Equal(t, tt.wantID, restored.Snapshot().CurrentTrack.ID)
		})
	}
}

func TestController_RemoveFromQueue_LastEntry(t *testing.T) {
	ctx := context.Background()
	c, m := newTestController(t, SeedFromTracks([]track.Track{trackA}))
	require.NoError(t, c.PlayTrack(ctx, trackA))

	require.NoError(t, c.RemoveFromQueue(ctx, 0))

	s := c.Snapshot()
	assert.Nil(t, s.CurrentTrack)
	assert.Equal(t, -1, s.CurrentIndex)
	assert.False(t, s.IsPlaying)
	assert.Equal(t, 0, m.Live())
}

func TestController_RemoveFromQueue_OutOfRange(t *testing.T) {
	c, _ := newTestController(t, sampleSeed())

	for _, index := range []int{-1, 3, 100} {
		err := c.RemoveFromQueue(context.Background(), index)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	assert.Len(t, c.Snapshot().Queue, 3)
}

func TestController_ShuffleRoundTrip(t *testing.T) {
	ctx := context.Background()
	tracks := manyTracks(10)
	c, _ := newTestController(t, SeedFromTracks(tracks))
	require.NoError(t, c.PlayTrack(ctx, tracks[3]))

	require.NoError(t, c.SetShuffle(true))

	s := c.Snapshot()
	assert.True(t, s.Shuffle)
	assert.Equal(t, 3, s.CurrentIndex, "current entry keeps its index")
	assert.Equal(t, "d", s.Queue[3].ID)
	assert.ElementsMatch(t, trackIDs(tracks), trackIDs(s.Queue))
	assert.NotEqual(t, trackIDs(tracks), trackIDs(s.Queue))

	require.NoError(t, c.SetShuffle(false))

	s = c.Snapshot()
	assert.False(t, s.Shuffle)
	assert.Equal(t, trackIDs(tracks), trackIDs(s.Queue))
	assert.Equal(t, 3, s.CurrentIndex)
	assert.Equal(t, "d", s.CurrentTrack.ID)
}

func TestController_ShuffleThenSkipAndUnshuffle(t *testing.T) {
	ctx := context.Background()
	tracks := manyTracks(6)
	c, _ := newTestController(t, SeedFromTracks(tracks))
	require.NoError(t, c.PlayTrack(ctx, tracks[0]))
	require.NoError(t, c.SetShuffle(true))

	require.NoError(t, c.SkipNext(ctx))
	playing := c.Snapshot().CurrentTrack.ID

	extra := track.Track{ID: "z", Title: "Extra", URI: "asset://z", Duration: time.Minute}
	require.NoError(t, c.AddToQueue(extra))
	require.NoError(t, c.SetShuffle(false))

	s := c.Snapshot()
	assert.Equal(t, append(trackIDs(tracks), "z"), trackIDs(s.Queue))
	assert.Equal(t, playing, s.CurrentTrack.ID)
	assert.Equal(t, playing, s.Queue[s.CurrentIndex].ID)
}

func TestController_ShuffleRemoveWhileShuffled(t *testing.T) {
	ctx := context.Background()
	tracks := manyTracks(5)
	c, _ := newTestController(t, SeedFromTracks(tracks))
	require.NoError(t, c.PlayTrack(ctx, tracks[2]))
	require.NoError(t, c.SetShuffle(true))

	// Remove something other than the current entry.
	s := c.Snapshot()
	victim := 0
	if s.CurrentIndex == 0 {
		victim = 1
	}
	removedID := s.Queue[victim].ID
	require.NoError(t, c.RemoveFromQueue(ctx, victim))
	require.NoError(t, c.SetShuffle(false))

	s = c.Snapshot()
	assert.NotContains(t, trackIDs(s.Queue), removedID)
	assert.Len(t, s.Queue, 4)
	assert.Equal(t, "c", s.CurrentTrack.ID)
	assert.Equal(t, "c", s.Queue[s.CurrentIndex].ID)
}

func TestController_SetShuffleOffWhenOff(t *testing.T) {
	c, _ := newTestController(t, sampleSeed())
	drain(c)

	require.NoError(t, c.SetShuffle(false))

	assert.Empty(t, drain(c))
	assert.Equal(t, []string{"1", "2", "3"}, trackIDs(c.Snapshot().Queue))
}

func TestController_CycleRepeat(t *testing.T) {
	c, _ := newTestController(t, sampleSeed())

	var modes []RepeatMode
	for range 4 {
		mode, err := c.CycleRepeat()
		require.NoError(t, err)
		modes = append(modes, mode)
	}

	assert.Equal(t, []RepeatMode{RepeatAll, RepeatOne, RepeatOff, RepeatAll}, modes)
}

func TestController_SetRepeat_Invalid(t *testing.T) {
	c, _ := newTestController(t, sampleSeed())

	assert.ErrorIs(t, c.SetRepeat(RepeatMode(9)), ErrInvalidRepeatMode)
}

func TestController_Checkpoint(t *testing.T) {
	ctx := context.Background()
	tracks := manyTracks(6)
	c, _ := newTestController(t, SeedFromTracks(tracks))
	require.NoError(t, c.PlayTrack(ctx, tracks[4]))
	require.NoError(t, c.SetRepeat(RepeatOne))
	require.NoError(t, c.SetShuffle(true))
	require.NoError(t, c.SeekTo(ctx, 12*time.Second))

	seed := c.Checkpoint()
	restored, _ := newTestController(t, seed)

	want := c.Snapshot()
	got := restored.Snapshot()
	assert.Equal(t, trackIDs(want.Queue), trackIDs(got.Queue))
	assert.Equal(t, want.CurrentIndex, got.CurrentIndex)
	assert.Equal(t, want.CurrentTrack.ID, got.CurrentTrack.ID)
	assert.Equal(t, 12*time.Second, got.Position)
	assert.Equal(t, RepeatOne, got.Repeat)
	assert.True(t, got.Shuffle)
	assert.False(t, got.IsPlaying)

	require.NoError(t, restored.SetShuffle(false))
	assert.Equal(t, trackIDs(tracks), trackIDs(restored.Snapshot().Queue))
	assert.Equal(t, 4, restored.Snapshot().CurrentIndex)
}

func TestController_Close(t *testing.T) {
	ctx := context.Background()
	m := media.NewMock()
	c := NewController(Config{}, m, sampleSeed())
	require.NoError(t, c.PlayTrack(ctx, trackA))

	c.Close()
	c.Close()

	assert.Equal(t, 0, m.Live())
	assert.ErrorIs(t, c.Resume(ctx), ErrClosed)
	assert.ErrorIs(t, c.SkipNext(ctx), ErrClosed)
	assert.ErrorIs(t, c.AddToQueue(trackB), ErrClosed)
	drain(c)
	_, open := <-c.Events()
	assert.False(t, open)
}

func TestController_Events(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, sampleSeed())

	require.NoError(t, c.PlayTrack(ctx, trackB))

	var started *Event
	for _, e := range drainEvents(c) {
		if e.Type == EventTrackStarted {
			started = &e
		}
	}
	require.NotNil(t, started)
	assert.Equal(t, "2", started.Snapshot.CurrentTrack.ID)
	assert.True(t, started.Snapshot.IsPlaying)
}

func TestController_StaleLoadIsDiscarded(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		m := media.NewMock()
		release := make(chan struct{})
		m.LoadFunc = func(ctx context.Context, uri string) error {
			if uri == trackA.URI {
				<-release
			}
			return nil
		}
		c := NewController(Config{}, m, sampleSeed())
		defer c.Close()

		errCh := make(chan error, 1)
		go func() { errCh <- c.PlayTrack(ctx, trackA) }()
		synctest.Wait()
		assert.True(t, c.Snapshot().IsLoading)

		require.NoError(t, c.PlayTrack(ctx, trackC))
		close(release)

		assert.ErrorIs(t, <-errCh, ErrSuperseded)
		s := c.Snapshot()
		assert.Equal(t, "3", s.CurrentTrack.ID)
		assert.Equal(t, 2, s.CurrentIndex)
		assert.True(t, s.IsPlaying)
		assert.Equal(t, 1, m.Live(), "the stale handle is released")
	})
}

func TestController_PauseDuringLoad(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		m := media.NewMock()
		release := make(chan struct{})
		m.LoadFunc = func(ctx context.Context, uri string) error {
			<-release
			return nil
		}
		c := NewController(Config{}, m, sampleSeed())
		defer c.Close()

		errCh := make(chan error, 1)
		go func() { errCh <- c.PlayTrack(ctx, trackB) }()
		synctest.Wait()

		require.NoError(t, c.Pause(ctx))
		close(release)
		require.NoError(t, <-errCh)

		s := c.Snapshot()
		assert.Equal(t, "2", s.CurrentTrack.ID)
		assert.False(t, s.IsPlaying)
		assert.Empty(t, m.CallsOf("play"))
	})
}

func TestController_TickAdvancesPosition(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewController(Config{}, media.NewMock(), sampleSeed())
		defer c.Close()
		require.NoError(t, c.PlayTrack(context.Background(), trackA))

		time.Sleep(3*time.Second + 500*time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 3*time.Second, c.Snapshot().Position)

		require.NoError(t, c.Pause(context.Background()))
		time.Sleep(10 * time.Second)
		synctest.Wait()
		assert.Equal(t, 3*time.Second, c.Snapshot().Position, "no ticks while paused")
	})
}

func TestController_TickRestartIsIdempotent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		c := NewController(Config{}, media.NewMock(), sampleSeed())
		defer c.Close()
		require.NoError(t, c.PlayTrack(ctx, trackA))

		for _, mode := range []RepeatMode{RepeatAll, RepeatOne, RepeatOff, RepeatAll} {
			require.NoError(t, c.SetRepeat(mode))
		}
		require.NoError(t, c.Resume(ctx))
		require.NoError(t, c.Resume(ctx))

		time.Sleep(3*time.Second + 500*time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 3*time.Second, c.Snapshot().Position)
	})
}

func TestController_PauseDuringAutoAdvance(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		m := media.NewMock()
		release := make(chan struct{})
		m.LoadFunc = func(ctx context.Context, uri string) error {
			if uri == trackB.URI {
				<-release
			}
			return nil
		}
		c := NewController(Config{}, m, sampleSeed())
		defer c.Close()
		require.NoError(t, c.PlayTrack(ctx, trackA))

		time.Sleep(120*time.Second + 500*time.Millisecond)
		synctest.Wait()
		require.True(t, c.Snapshot().IsLoading)

		require.NoError(t, c.Pause(ctx))
		close(release)
		synctest.Wait()

		s := c.Snapshot()
		assert.Equal(t, "2", s.CurrentTrack.ID)
		assert.Equal(t, 1, s.CurrentIndex)
		assert.False(t, s.IsPlaying)
		assert.False(t, s.IsLoading)
		assert.Len(t, m.CallsOf("play"), 1, "only the first track was started")

		time.Sleep(5 * time.Second)
		synctest.Wait()
		assert.Equal(t, time.Duration(0), c.Snapshot().Position)
	})
}

func TestController_TrackEndAdvances(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := media.NewMock()
		c := NewController(Config{}, m, sampleSeed())
		defer c.Close()
		require.NoError(t, c.PlayTrack(context.Background(), trackA))

		// 120 ticks of 1s on a 120000ms track.
		time.Sleep(120*time.Second + 500*time.Millisecond)
		synctest.Wait()

		s := c.Snapshot()
		assert.Equal(t, time.Duration(0), s.Position)
		assert.Equal(t, 1, s.CurrentIndex)
		assert.Equal(t, "2", s.CurrentTrack.ID)
		assert.True(t, s.IsPlaying)
		assert.Equal(t, []string{"asset://a", "asset://b"}, m.LoadedURIs())
	})
}

func TestController_TrackEndAtLastStops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewController(Config{}, media.NewMock(), sampleSeed())
		defer c.Close()
		require.NoError(t, c.PlayTrack(context.Background(), trackC))

		time.Sleep(150*time.Second + 500*time.Millisecond)
		synctest.Wait()

		s := c.Snapshot()
		assert.Equal(t, 2, s.CurrentIndex)
		assert.False(t, s.IsPlaying)
		assert.Equal(t, time.Duration(0), s.Position)
	})
}

func TestController_RepeatOneReplays(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := media.NewMock()
		c := NewController(Config{}, m, sampleSeed())
		defer c.Close()
		require.NoError(t, c.SetRepeat(RepeatOne))
		require.NoError(t, c.PlayTrack(context.Background(), trackA))

		time.Sleep(120*time.Second + 500*time.Millisecond)
		synctest.Wait()

		s := c.Snapshot()
		assert.Equal(t, 0, s.CurrentIndex)
		assert.Equal(t, "1", s.CurrentTrack.ID)
		assert.Equal(t, time.Duration(0), s.Position)
		assert.True(t, s.IsPlaying)
		assert.Len(t, m.CallsOf("load"), 1)
		seeks := m.CallsOf("seek")
		require.NotEmpty(t, seeks)
		assert.Equal(t, time.Duration(0), seeks[len(seeks)-1].Pos)

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, time.Second, c.Snapshot().Position)
	})
}

func drainEvents(c *Controller) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-c.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func drain(c *Controller) []EventType {
	var types []EventType
	for _, e := range drainEvents(c) {
		types = append(types, e.Type)
	}
	return types
}
