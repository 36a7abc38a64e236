// Package session wires the playback controller to the catalog, the
// admission filters, notifications and persistence.
package session

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/catalog"
	"github.com/osa030/tunedeck/internal/app/filter"
	"github.com/osa030/tunedeck/internal/app/media"
	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/domain/track"
	"github.com/osa030/tunedeck/internal/infra/config"
	"github.com/osa030/tunedeck/internal/infra/store"
)

// ErrTrackNotFound is returned for ids in neither the catalog nor the queue.
var ErrTrackNotFound = errors.New("track not found")

// Store persists the session. *store.Manager satisfies it.
type Store interface {
	Load() (*store.SessionState, error)
	Save(state store.SessionState)
	SaveNow(state store.SessionState) error
}

// Options holds the collaborators of a session.
type Options struct {
	Config   *config.Config
	Backend  media.Backend
	Catalog  catalog.Provider
	Resolver catalog.TrackResolver // resolves ids outside the catalog; optional
	Store    Store                 // nil disables persistence
	Rand     *rand.Rand            // shuffle source; random when nil
}

// AddResult is the outcome of one AddToQueue request.
type AddResult struct {
	TrackID  string
	Accepted bool
	Code     string // rejection code
	Filter   string // rejecting filter
}

// Manager manages the playback session.
type Manager struct {
	mu     sync.Mutex
	closed bool

	config       *config.Config
	library      *catalog.Library
	resolver     catalog.TrackResolver
	playback     *playback.Controller
	filterChain  *filter.Chain
	notification *notification.Manager
	store        Store

	done chan struct{}
}

// NewManager loads the catalog, restores or seeds the queue and starts
// forwarding playback events.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil || opts.Backend == nil || opts.Catalog == nil {
		return nil, errors.New("session: config, backend and catalog are required")
	}

	tracks, err := opts.Catalog.Tracks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load catalog")
	}
	library := catalog.NewLibrary(tracks)
	zlog.Info().Msgf("catalog loaded: tracks=%d provider=%s", library.Len(), opts.Catalog.Name())

	seed, restored := restoreSeed(opts.Store)
	if !restored {
		seed = playback.SeedFromTracks(library.All())
		if seed.Repeat, err = playback.ParseRepeatMode(cfg.Playback.Repeat); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		config:   cfg,
		library:  library,
		resolver: opts.Resolver,
		playback: playback.NewController(playback.Config{
			TickInterval:     cfg.Playback.TickInterval(),
			RestartThreshold: cfg.Playback.RestartThreshold(),
			EventBuffer:      cfg.Playback.EventBuffer,
			Rand:             opts.Rand,
		}, opts.Backend, seed),
		notification: notification.NewManager(),
		store:        opts.Store,
		done:         make(chan struct{}),
	}

	m.filterChain, err = filter.NewChainFromSettings(enabledFilters(cfg), filter.Deps{Queue: m.playback})
	if err != nil {
		m.playback.Close()
		return nil, errors.Wrap(err, "failed to set up filters")
	}

	if err := opts.Backend.ConfigureSession(ctx, sessionOptions(cfg.Media.Session)); err != nil {
		zlog.Warn().Msgf("failed to configure media session: %v", err)
	}

	if !restored && cfg.Playback.Shuffle {
		if err := m.playback.SetShuffle(true); err != nil {
			zlog.Warn().Msgf("failed to enable shuffle: %v", err)
		}
	}

	go m.eventLoop()

	snap := m.playback.Snapshot()
	zlog.Info().Msgf("session ready: restored=%t queue=%d index=%d repeat=%s shuffle=%t",
		restored, len(snap.Queue), snap.CurrentIndex, snap.Repeat, snap.Shuffle)
	return m, nil
}

// restoreSeed reads the saved session. It reports false when there is
// nothing usable to restore.
func restoreSeed(st Store) (playback.Seed, bool) {
	if st == nil {
		return playback.Seed{}, false
	}
	state, err := st.Load()
	if err != nil {
		zlog.Warn().Msgf("failed to restore session, starting from catalog: %v", err)
		return playback.Seed{}, false
	}
	if state == nil || len(state.Queue) == 0 {
		return playback.Seed{}, false
	}

	repeat, err := playback.ParseRepeatMode(state.Repeat)
	if err != nil {
		zlog.Warn().Msgf("saved repeat mode ignored: %v", err)
	}
	seed := playback.Seed{
		Queue:        state.Queue,
		CurrentIndex: state.CurrentIndex,
		Position:     state.Position,
		Repeat:       repeat,
		Shuffle:      state.Shuffle,
	}
	if state.Shuffle && len(state.Base) > 0 {
		seed.Base = state.Base
	}
	zlog.Info().Msgf("restoring session saved at %s", state.SavedAt.Format(time.DateTime))
	return seed, true
}

func enabledFilters(cfg *config.Config) map[string]map[string]any {
	enabled := make(map[string]map[string]any)
	for name := range cfg.Filters {
		if cfg.IsFilterEnabled(name) {
			enabled[name] = cfg.GetFilterSettings(name)
		}
	}
	return enabled
}

func sessionOptions(c config.MediaSessionConfig) media.SessionOptions {
	boolOr := func(p *bool, def bool) bool {
		if p == nil {
			return def
		}
		return *p
	}
	return media.SessionOptions{
		StaysActiveInBackground: boolOr(c.StaysActiveInBackground, true),
		PlaysInSilentMode:       boolOr(c.PlaysInSilentMode, true),
		DuckOthers:              boolOr(c.DuckOthers, true),
		PlayThroughEarpiece:     c.PlayThroughEarpiece,
		InterruptionMode:        media.InterruptionMode(c.InterruptionMode),
	}
}

// State returns the current playback state.
func (m *Manager) State() playback.Snapshot {
	return m.playback.Snapshot()
}

// Catalog returns the catalog tracks.
func (m *Manager) Catalog() []track.Track {
	return m.library.All()
}

// Done is closed once the session has closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Notifications returns the notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// lookup finds a track by id in the catalog, then in the queue, then
// through the resolver.
func (m *Manager) lookup(ctx context.Context, id string) (track.Track, error) {
	if t, ok := m.library.Get(id); ok {
		return t, nil
	}
	for _, t := range m.playback.Tracks() {
		if t.ID == id {
			return t, nil
		}
	}
	if m.resolver != nil {
		t, ok, err := m.resolver.Resolve(ctx, id)
		if err != nil {
			return track.Track{}, errors.Wrapf(ErrTrackNotFound, "id=%s: %v", id, err)
		}
		if ok {
			return t, nil
		}
	}
	return track.Track{}, errors.Wrapf(ErrTrackNotFound, "id=%s", id)
}

// PlayTrack plays the track with the given id.
func (m *Manager) PlayTrack(ctx context.Context, id string) error {
	t, err := m.lookup(ctx, id)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("play track: %s", t.Label())
	return m.playback.PlayTrack(ctx, t)
}

// PlayAt plays the queue entry at index.
func (m *Manager) PlayAt(ctx context.Context, index int) error {
	return m.playback.PlayAt(ctx, index)
}

func (m *Manager) Pause(ctx context.Context) error {
	return m.playback.Pause(ctx)
}

func (m *Manager) Resume(ctx context.Context) error {
	return m.playback.Resume(ctx)
}

func (m *Manager) Stop(ctx context.Context) error {
	return m.playback.Stop(ctx)
}

func (m *Manager) SeekTo(ctx context.Context, pos time.Duration) error {
	return m.playback.SeekTo(ctx, pos)
}

func (m *Manager) SkipNext(ctx context.Context) error {
	return m.playback.SkipNext(ctx)
}

func (m *Manager) SkipPrevious(ctx context.Context) error {
	return m.playback.SkipPrevious(ctx)
}

// AddToQueue runs each id through the filter chain and appends the accepted
// tracks in order. Unknown ids fail the whole call before anything is added.
func (m *Manager) AddToQueue(ctx context.Context, ids ...string) ([]AddResult, error) {
	tracks := make([]track.Track, len(ids))
	for i, id := range ids {
		t, err := m.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		tracks[i] = t
	}

	results := make([]AddResult, len(tracks))
	for i, t := range tracks {
		result := m.filterChain.Execute(ctx, t)
		results[i] = AddResult{
			TrackID:  t.ID,
			Accepted: result.Accepted,
			Code:     result.Code,
			Filter:   result.Filter,
		}
		if !result.Accepted {
			zlog.Info().Msgf("add to queue rejected: track=%s filter=%s code=%s", t.Label(), result.Filter, result.Code)
			continue
		}
		// One at a time so later filters see earlier additions.
		if err := m.playback.AddToQueue(t); err != nil {
			return results[:i], err
		}
		zlog.Info().Msgf("added to queue: %s", t.Label())
	}
	return results, nil
}

func (m *Manager) RemoveFromQueue(ctx context.Context, index int) error {
	return m.playback.RemoveFromQueue(ctx, index)
}

// SetRepeat sets the repeat mode by name.
func (m *Manager) SetRepeat(mode string) error {
	r, err := playback.ParseRepeatMode(mode)
	if err != nil {
		return err
	}
	return m.playback.SetRepeat(r)
}

// CycleRepeat advances the repeat mode off, all, one, off.
func (m *Manager) CycleRepeat() (playback.RepeatMode, error) {
	return m.playback.CycleRepeat()
}

func (m *Manager) SetShuffle(enabled bool) error {
	return m.playback.SetShuffle(enabled)
}

// eventLoop forwards controller events until the controller closes its channel.
func (m *Manager) eventLoop() {
	defer close(m.done)

	for ev := range m.playback.Events() {
		m.handlePlaybackEvent(ev)
	}
}

func (m *Manager) handlePlaybackEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventPositionChanged:
		zlog.Trace().Msgf("position: %s", ev.Snapshot.Position)
	case playback.EventError:
		zlog.Warn().Msgf("playback error: %v", ev.Err)
	case playback.EventTrackStarted:
		if ev.Snapshot.CurrentTrack != nil {
			zlog.Info().Msgf("now playing: %s", ev.Snapshot.CurrentTrack.Label())
		}
	default:
		zlog.Debug().Msgf("playback event: type=%s", ev.Type)
	}

	m.notification.Broadcast(notification.FromEvent(ev))

	if m.store != nil && ev.Type.Persistent() {
		m.store.Save(toState(m.playback.Checkpoint()))
	}
}

func toState(seed playback.Seed) store.SessionState {
	return store.SessionState{
		Queue:        seed.Queue,
		Base:         seed.Base,
		CurrentIndex: seed.CurrentIndex,
		Position:     seed.Position,
		Repeat:       seed.Repeat.String(),
		Shuffle:      seed.Shuffle,
	}
}

// Close stops playback, drains pending events and saves a final checkpoint.
// The store itself is closed by its owner.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	seed := m.playback.Checkpoint()
	m.playback.Close()
	<-m.done

	if m.store != nil {
		if err := m.store.SaveNow(toState(seed)); err != nil {
			zlog.Error().Msgf("failed to save session: %v", err)
		}
	}
	m.notification.Close()
	zlog.Info().Msg("session closed")
}
