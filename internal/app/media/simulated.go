package media

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// supportedSchemes lists the URI schemes the simulated backend accepts.
var supportedSchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"file":    true,
	"asset":   true,
	"spotify": true, // catalog tracks from the spotify provider
}

type simulatedResource struct {
	uri      string
	playing  bool
	position time.Duration
}

// Simulated is a Backend that keeps handle bookkeeping without producing audio.
type Simulated struct {
	mu          sync.Mutex
	loadLatency time.Duration
	next        Handle
	resources   map[Handle]*simulatedResource
	session     *SessionOptions
}

// NewSimulated creates a simulated backend.
// loadLatency delays every Load to mimic network fetches.
func NewSimulated(loadLatency time.Duration) *Simulated {
	return &Simulated{
		loadLatency: loadLatency,
		resources:   make(map[Handle]*simulatedResource),
	}
}

func (s *Simulated) ConfigureSession(_ context.Context, opts SessionOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.PlayThroughEarpiece && opts.StaysActiveInBackground {
		zlog.Warn().Msg("media: earpiece routing requested for background session")
	}
	s.session = &opts
	zlog.Debug().Msgf("media: session configured: background=%v silent=%v duck=%v interruption=%s",
		opts.StaysActiveInBackground, opts.PlaysInSilentMode, opts.DuckOthers, opts.InterruptionMode)
	return nil
}

func (s *Simulated) Load(ctx context.Context, uri string) (Handle, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return 0, &LoadError{URI: uri, Err: errors.Wrap(err, "invalid uri")}
	}
	if !supportedSchemes[u.Scheme] {
		return 0, &LoadError{URI: uri, Err: errors.Newf("unsupported scheme %q", u.Scheme)}
	}

	if s.loadLatency > 0 {
		timer := time.NewTimer(s.loadLatency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, &LoadError{URI: uri, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.resources[h] = &simulatedResource{uri: uri}
	zlog.Debug().Msgf("media: loaded: handle=%d uri=%s", h, uri)
	return h, nil
}

func (s *Simulated) Play(_ context.Context, h Handle) error {
	return s.withResource("play", h, func(r *simulatedResource) {
		r.playing = true
	})
}

func (s *Simulated) Pause(_ context.Context, h Handle) error {
	return s.withResource("pause", h, func(r *simulatedResource) {
		r.playing = false
	})
}

func (s *Simulated) Stop(_ context.Context, h Handle) error {
	return s.withResource("stop", h, func(r *simulatedResource) {
		r.playing = false
		r.position = 0
	})
}

func (s *Simulated) Seek(_ context.Context, h Handle, pos time.Duration) error {
	return s.withResource("seek", h, func(r *simulatedResource) {
		r.position = pos
	})
}

func (s *Simulated) Unload(_ context.Context, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[h]; !ok {
		return &TransportError{Op: "unload", Handle: h, Err: ErrUnknownHandle}
	}
	delete(s.resources, h)
	zlog.Debug().Msgf("media: unloaded: handle=%d", h)
	return nil
}

// Loaded returns the number of handles currently held.
func (s *Simulated) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}

// IsPlaying reports whether the resource behind h is playing.
func (s *Simulated) IsPlaying(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[h]
	return ok && r.playing
}

func (s *Simulated) withResource(op string, h Handle, fn func(*simulatedResource)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[h]
	if !ok {
		return &TransportError{Op: op, Handle: h, Err: ErrUnknownHandle}
	}
	fn(r)
	return nil
}

var _ Backend = (*Simulated)(nil)
