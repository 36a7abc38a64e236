package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/media"
	"github.com/osa030/tunedeck/internal/domain/queue"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// Errors
var (
	ErrNoTrack         = errors.New("no track selected")
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrSuperseded      = errors.New("load superseded by a newer request")
	ErrClosed          = errors.New("controller closed")
)

// Defaults
const (
	DefaultTickInterval     = time.Second
	DefaultRestartThreshold = 5 * time.Second
	DefaultEventBuffer      = 16
)

// Config holds controller configuration.
type Config struct {
	TickInterval     time.Duration // Position advance per tick while playing
	RestartThreshold time.Duration // SkipPrevious restarts the track above this position
	EventBuffer      int           // Capacity of the events channel
	Rand             *rand.Rand    // Shuffle source; seeded randomly when nil
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.RestartThreshold <= 0 {
		c.RestartThreshold = DefaultRestartThreshold
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// Controller owns the playback session.
// Backend loads run without the lock held; every other backend call is made
// under it so transport state and backend state move together.
type Controller struct {
	mu sync.Mutex

	backend media.Backend
	config  Config

	// Queue management
	queue        *queue.Queue
	base         *queue.Queue // unshuffled order while shuffle is on
	currentIndex int
	current      *queue.Entry

	// Transport state
	position time.Duration
	duration time.Duration
	playing  bool
	loading  bool
	autoplay bool // start playback when the pending load completes
	repeat   RepeatMode
	shuffle  bool

	// Backend resources
	handle  media.Handle
	loadGen uint64

	// Tick
	tickCancel func()
	tickGen    uint64

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewController creates a controller from seed.
// The entry at seed.CurrentIndex is selected but not loaded; an out-of-range
// index selects the first entry. Nothing is selected when the queue is empty.
func NewController(config Config, backend media.Backend, seed Seed) *Controller {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		backend:      backend,
		config:       config,
		queue:        queue.FromEntries(seed.Queue),
		currentIndex: -1,
		repeat:       seed.Repeat,
		eventCh:      make(chan Event, config.EventBuffer),
		ctx:          ctx,
		cancel:       cancel,
	}
	if !c.repeat.Valid() {
		c.repeat = RepeatOff
	}

	if seed.Shuffle {
		c.shuffle = true
		if seed.Base != nil {
			c.base = queue.FromEntries(seed.Base)
		} else {
			c.base = c.queue.Clone()
		}
	}

	index := seed.CurrentIndex
	if index < 0 || index >= c.queue.Len() {
		index = 0
	}
	if e, ok := c.queue.At(index); ok {
		c.current = &e
		c.currentIndex = index
		c.duration = e.Track.Duration
		if index == seed.CurrentIndex && seed.Position > 0 && seed.Position < c.duration {
			c.position = seed.Position
		}
	}

	return c
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// PlayTrack loads and plays t.
// When t is in the queue the cursor moves to its first occurrence;
// otherwise the cursor is left where it is.
func (c *Controller) PlayTrack(ctx context.Context, t track.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	entry := queue.Entry{Track: t}
	if index := c.queue.IndexOfID(t.ID); index >= 0 {
		entry, _ = c.queue.At(index)
	}
	c.mu.Unlock()

	return c.play(ctx, entry, 0)
}

// PlayAt loads and plays the queue entry at index.
func (c *Controller) PlayAt(ctx context.Context, index int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	entry, ok := c.queue.At(index)
	c.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d", index)
	}
	return c.play(ctx, entry, 0)
}

// Pause pauses playback. It is a no-op when nothing is playing.
// A pause during a load keeps the loaded track from starting.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.loading {
		c.autoplay = false
		return nil
	}
	if !c.playing {
		return nil
	}
	if c.handle != 0 {
		if err := c.backend.Pause(ctx, c.handle); err != nil {
			zlog.Error().Err(err).Msg("playback: pause failed")
			return errors.Wrap(err, "pause")
		}
	}

	c.playing = false
	c.stopTickLocked()
	c.sendEventLocked(EventStateChanged, nil)
	return nil
}

// Resume resumes playback of the selected track, loading it if needed.
// With nothing selected it starts the first queue entry.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.loading {
		c.autoplay = true
		c.mu.Unlock()
		return nil
	}
	if c.current == nil {
		entry, ok := c.queue.At(0)
		c.mu.Unlock()
		if !ok {
			return ErrNoTrack
		}
		return c.play(ctx, entry, 0)
	}
	if c.handle == 0 {
		entry, at := *c.current, c.position
		c.mu.Unlock()
		return c.play(ctx, entry, at)
	}
	defer c.mu.Unlock()

	if c.playing {
		return nil
	}
	if err := c.backend.Play(ctx, c.handle); err != nil {
		zlog.Error().Err(err).Msg("playback: resume failed")
		return errors.Wrap(err, "resume")
	}

	c.playing = true
	c.startTickLocked()
	c.sendEventLocked(EventStateChanged, nil)
	return nil
}

// Stop halts playback and rewinds to 0. The current track stays selected.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.loading {
		c.autoplay = false
	}
	if c.handle != 0 {
		if err := c.backend.Stop(ctx, c.handle); err != nil {
			zlog.Error().Err(err).Msg("playback: stop failed")
			return errors.Wrap(err, "stop")
		}
	}

	c.playing = false
	c.position = 0
	c.stopTickLocked()
	c.sendEventLocked(EventStateChanged, nil)
	return nil
}

// SeekTo moves the position of the current track. pos is not clamped.
func (c *Controller) SeekTo(ctx context.Context, pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.current == nil {
		return ErrNoTrack
	}
	if c.handle != 0 {
		if err := c.backend.Seek(ctx, c.handle, pos); err != nil {
			zlog.Error().Err(err).Msgf("playback: seek to %v failed", pos)
			return errors.Wrap(err, "seek")
		}
	}

	c.position = pos
	c.sendEventLocked(EventPositionChanged, nil)
	return nil
}

// SkipNext advances to the next queue entry.
// Past the last entry it wraps with RepeatAll and halts otherwise,
// leaving the cursor on the last entry.
func (c *Controller) SkipNext(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	entry, ok, err := c.nextEntryLocked(ctx)
	if !ok {
		c.mu.Unlock()
		return err
	}
	gen := c.beginLoadLocked(ctx)
	c.mu.Unlock()

	return c.load(ctx, entry, 0, gen)
}

// nextEntryLocked picks the entry after the cursor. When there is none it
// halts playback and reports false.
// Must be called with lock held.
func (c *Controller) nextEntryLocked(ctx context.Context) (queue.Entry, bool, error) {
	n := c.queue.Len()
	if n == 0 {
		c.haltLocked(ctx)
		return queue.Entry{}, false, ErrQueueEmpty
	}

	next := c.currentIndex + 1
	if next >= n {
		if c.repeat != RepeatAll {
			zlog.Info().Msg("playback: reached end of queue")
			c.haltLocked(ctx)
			c.sendEventLocked(EventQueueEnded, nil)
			return queue.Entry{}, false, nil
		}
		next = 0
	}

	entry, _ := c.queue.At(next)
	return entry, true, nil
}

// SkipPrevious restarts the current track when it has played past the
// restart threshold, and otherwise moves to the previous entry.
// Before the first entry it wraps with RepeatAll and restarts otherwise.
func (c *Controller) SkipPrevious(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	n := c.queue.Len()
	if c.position > c.config.RestartThreshold || n == 0 {
		defer c.mu.Unlock()
		return c.restartLocked(ctx)
	}

	prev := c.currentIndex - 1
	if prev < 0 {
		if c.repeat != RepeatAll {
			defer c.mu.Unlock()
			return c.restartLocked(ctx)
		}
		prev = n - 1
	}
	if prev >= n {
		prev = n - 1
	}

	entry, _ := c.queue.At(prev)
	c.mu.Unlock()

	return c.play(ctx, entry, 0)
}

// AddToQueue appends tracks. The cursor does not move.
func (c *Controller) AddToQueue(tracks ...track.Track) error {
	for i := range tracks {
		if err := tracks[i].Validate(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if len(tracks) == 0 {
		return nil
	}

	added := c.queue.Add(tracks...)
	if c.base != nil {
		c.base.Append(added...)
	}
	zlog.Debug().Msgf("playback: queued %d track(s), queue length %d", len(added), c.queue.Len())
	c.sendEventLocked(EventQueueChanged, nil)
	return nil
}

// RemoveFromQueue removes the entry at index.
// Removing the current entry moves playback to the entry that followed it.
// When the removed entry was last, RepeatAll wraps to the first entry and
// otherwise the new last entry is selected without playing.
func (c *Controller) RemoveFromQueue(ctx context.Context, index int) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	removed, ok := c.queue.RemoveAt(index)
	if !ok {
		c.mu.Unlock()
		return errors.Wrapf(ErrIndexOutOfRange, "index %d", index)
	}
	if c.base != nil {
		c.base.RemoveKey(removed.Key)
	}

	n := c.queue.Len()
	removedCurrent := c.current != nil && c.current.Key == removed.Key

	switch {
	case index < c.currentIndex:
		c.currentIndex--
	case index > c.currentIndex:
	case !removedCurrent:
		// The cursor pointed at an entry that is not the current track.
		if c.currentIndex >= n {
			c.currentIndex = n - 1
		}
	case n == 0:
		c.releaseLocked(ctx)
		c.current = nil
		c.currentIndex = -1
		c.position = 0
		c.duration = 0
		c.sendEventLocked(EventStateChanged, nil)
	default:
		next := index
		if next >= n {
			if c.repeat != RepeatAll {
				c.releaseLocked(ctx)
				c.selectLocked(n - 1)
				c.sendEventLocked(EventQueueChanged, nil)
				c.mu.Unlock()
				return nil
			}
			next = 0
		}
		// Select the successor first so a failed load leaves a consistent cursor.
		c.releaseLocked(ctx)
		c.selectLocked(next)
		entry := *c.current
		c.sendEventLocked(EventQueueChanged, nil)
		c.mu.Unlock()
		return c.play(ctx, entry, 0)
	}

	c.sendEventLocked(EventQueueChanged, nil)
	c.mu.Unlock()
	return nil
}

// SetRepeat sets the repeat mode.
func (c *Controller) SetRepeat(mode RepeatMode) error {
	if !mode.Valid() {
		return errors.Wrapf(ErrInvalidRepeatMode, "%d", int(mode))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.setRepeatLocked(mode)
	return nil
}

// CycleRepeat advances the repeat mode through off, all, one and returns it.
func (c *Controller) CycleRepeat() (RepeatMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.repeat, ErrClosed
	}
	c.setRepeatLocked(c.repeat.Next())
	return c.repeat, nil
}

func (c *Controller) setRepeatLocked(mode RepeatMode) {
	c.repeat = mode
	c.startTickLocked()
	zlog.Info().Msgf("playback: repeat mode %s", mode)
	c.sendEventLocked(EventModeChanged, nil)
}

// SetShuffle turns shuffle on or off.
// Enabling keeps the current entry at its index and permutes the others;
// enabling again reshuffles. Disabling restores the order the queue had
// before shuffling, including later additions and removals.
func (c *Controller) SetShuffle(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if enabled {
		if c.base == nil {
			c.base = c.queue.Clone()
		}
		c.queue = c.queue.ShufflePinned(c.currentIndex, c.config.Rand)
		c.shuffle = true
		c.sendEventLocked(EventModeChanged, nil)
		c.sendEventLocked(EventQueueChanged, nil)
		return nil
	}

	if !c.shuffle {
		return nil
	}
	if c.base != nil {
		c.queue = c.base
	}
	c.base = nil
	c.shuffle = false
	c.currentIndex = c.resolveIndexLocked()
	c.sendEventLocked(EventModeChanged, nil)
	c.sendEventLocked(EventQueueChanged, nil)
	return nil
}

// resolveIndexLocked finds the current entry in the queue, by key first and
// then by track id.
func (c *Controller) resolveIndexLocked() int {
	if c.current == nil {
		return -1
	}
	if index := c.queue.IndexOfKey(c.current.Key); index >= 0 {
		return index
	}
	if index := c.queue.IndexOfID(c.current.Track.ID); index >= 0 {
		return index
	}
	if c.queue.IsEmpty() {
		return -1
	}
	zlog.Warn().Msgf("playback: current track %s not found in queue, cursor reset to 0", c.current.Track.ID)
	return 0
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Tracks returns the queued tracks in play order.
func (c *Controller) Tracks() []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Tracks()
}

// Checkpoint exports the state needed to rebuild the session with NewController.
func (c *Controller) Checkpoint() Seed {
	c.mu.Lock()
	defer c.mu.Unlock()

	seed := Seed{
		Queue:        c.queue.Entries(),
		CurrentIndex: c.currentIndex,
		Position:     c.position,
		Repeat:       c.repeat,
		Shuffle:      c.shuffle,
	}
	if c.base != nil {
		seed.Base = c.base.Entries()
	}
	return seed
}

// Close stops the tick, releases the backend handle and closes the events channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.releaseLocked(context.Background())
	c.loading = false
	c.closed = true
	c.cancel()
	close(c.eventCh)
}

// play releases the held handle, loads entry and starts it at startAt.
// The lock is released while the backend loads; if another play starts in
// the meantime this one returns ErrSuperseded and drops its handle.
func (c *Controller) play(ctx context.Context, entry queue.Entry, startAt time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen := c.beginLoadLocked(ctx)
	c.mu.Unlock()

	return c.load(ctx, entry, startAt, gen)
}

// beginLoadLocked releases the held handle and marks a load as pending.
// It returns the generation the load must still match when it completes.
// Must be called with lock held.
func (c *Controller) beginLoadLocked(ctx context.Context) uint64 {
	c.loadGen++
	c.releaseLocked(ctx)
	c.loading = true
	c.autoplay = true
	c.sendEventLocked(EventStateChanged, nil)
	return c.loadGen
}

// load runs the backend load started by beginLoadLocked and commits entry.
func (c *Controller) load(ctx context.Context, entry queue.Entry, startAt time.Duration, gen uint64) error {
	h, err := c.backend.Load(ctx, entry.Track.URI)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.loadGen {
		if err == nil {
			if uerr := c.backend.Unload(context.WithoutCancel(ctx), h); uerr != nil {
				zlog.Warn().Err(uerr).Msgf("playback: failed to release stale handle %d", h)
			}
		}
		zlog.Debug().Msgf("playback: discarded stale load: track=%s", entry.Track.ID)
		if c.closed {
			return ErrClosed
		}
		return ErrSuperseded
	}

	c.loading = false
	if err != nil {
		c.playing = false
		err = errors.Wrapf(err, "play track %s", entry.Track.ID)
		zlog.Error().Err(err).Msg("playback: load failed")
		c.sendEventLocked(EventError, err)
		return err
	}

	c.handle = h
	c.current = &entry
	if index := c.queue.IndexOfKey(entry.Key); index >= 0 {
		c.currentIndex = index
	}
	c.position = 0
	c.duration = entry.Track.Duration

	if startAt > 0 {
		if err := c.backend.Seek(ctx, h, startAt); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to restore position %v", startAt)
		} else {
			c.position = startAt
		}
	}

	if !c.autoplay {
		c.sendEventLocked(EventStateChanged, nil)
		return nil
	}

	if err := c.backend.Play(ctx, h); err != nil {
		c.playing = false
		err = errors.Wrapf(err, "play track %s", entry.Track.ID)
		zlog.Error().Err(err).Msg("playback: play failed")
		c.sendEventLocked(EventError, err)
		return err
	}

	c.playing = true
	c.startTickLocked()
	zlog.Info().Msgf("playback: playing: track=%s index=%d duration=%v",
		entry.Track.Label(), c.currentIndex, entry.Track.Duration)
	c.sendEventLocked(EventTrackStarted, nil)
	return nil
}

// selectLocked makes the entry at index current without loading it.
// Must be called with lock held.
func (c *Controller) selectLocked(index int) {
	e, ok := c.queue.At(index)
	if !ok {
		c.current = nil
		c.currentIndex = -1
		c.position = 0
		c.duration = 0
		return
	}
	c.current = &e
	c.currentIndex = index
	c.position = 0
	c.duration = e.Track.Duration
}

// releaseLocked stops the tick and unloads the held handle.
// An unload failure is logged; the handle is dropped either way.
// Must be called with lock held.
func (c *Controller) releaseLocked(ctx context.Context) {
	c.stopTickLocked()
	c.playing = false
	if c.handle == 0 {
		return
	}
	if err := c.backend.Unload(ctx, c.handle); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to release handle %d", c.handle)
	}
	c.handle = 0
}

// haltLocked stops progression without changing the cursor.
// Must be called with lock held.
func (c *Controller) haltLocked(ctx context.Context) {
	if c.playing && c.handle != 0 {
		if err := c.backend.Pause(ctx, c.handle); err != nil {
			zlog.Warn().Err(err).Msg("playback: pause at end of queue failed")
		}
	}
	c.playing = false
	c.stopTickLocked()
	c.sendEventLocked(EventStateChanged, nil)
}

// restartLocked rewinds the current track to 0.
// Must be called with lock held.
func (c *Controller) restartLocked(ctx context.Context) error {
	if c.handle != 0 {
		if err := c.backend.Seek(ctx, c.handle, 0); err != nil {
			zlog.Error().Err(err).Msg("playback: restart failed")
			return errors.Wrap(err, "restart")
		}
	}
	c.position = 0
	c.startTickLocked()
	c.sendEventLocked(EventPositionChanged, nil)
	return nil
}

// startTickLocked (re)starts the position ticker if playing.
// Must be called with lock held.
func (c *Controller) startTickLocked() {
	c.stopTickLocked()
	if !c.playing || c.closed {
		return
	}

	gen := c.tickGen
	ctx, cancel := context.WithCancel(c.ctx)
	c.tickCancel = cancel
	interval := c.config.TickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.tick(gen) {
					return
				}
			}
		}
	}()
}

// stopTickLocked cancels the ticker. A tick already waiting for the lock
// sees the generation change and does nothing.
// Must be called with lock held.
func (c *Controller) stopTickLocked() {
	c.tickGen++
	if c.tickCancel != nil {
		c.tickCancel()
		c.tickCancel = nil
	}
}

// tick advances the position by one interval and handles the end of the
// track. It returns false when the ticker goroutine should exit.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()

	if c.closed || gen != c.tickGen || !c.playing {
		c.mu.Unlock()
		return false
	}

	next := c.position + c.config.TickInterval
	if next < c.duration {
		c.position = next
		c.sendEventLocked(EventPositionChanged, nil)
		c.mu.Unlock()
		return true
	}

	c.position = 0
	c.sendEventLocked(EventTrackEnded, nil)

	if c.repeat == RepeatOne {
		if c.handle != 0 {
			if err := c.backend.Seek(c.ctx, c.handle, 0); err != nil {
				zlog.Warn().Err(err).Msg("playback: repeat seek failed")
			}
		}
		zlog.Debug().Msgf("playback: repeating track %s", c.current.Track.ID)
		c.sendEventLocked(EventTrackStarted, nil)
		c.mu.Unlock()
		return true
	}

	// The next load is pending before the lock is released, so a Pause or
	// Stop landing from here on cancels its autoplay.
	entry, ok, _ := c.nextEntryLocked(c.ctx)
	if !ok {
		c.mu.Unlock()
		return false
	}
	loadGen := c.beginLoadLocked(c.ctx)
	c.mu.Unlock()

	if err := c.load(c.ctx, entry, 0, loadGen); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
		zlog.Warn().Err(err).Msg("playback: automatic advance failed")
	}
	return false
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(t EventType, err error) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- Event{Type: t, Snapshot: c.snapshotLocked(), Err: err}:
	default:
		// Channel full, drop event
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		CurrentIndex: c.currentIndex,
		Queue:        c.queue.Tracks(),
		Position:     c.position,
		Duration:     c.duration,
		IsPlaying:    c.playing,
		IsLoading:    c.loading,
		Repeat:       c.repeat,
		Shuffle:      c.shuffle,
	}
	if c.current != nil {
		t := c.current.Track
		s.CurrentTrack = &t
	}
	return s
}
