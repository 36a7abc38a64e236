// Package media defines the contract with the platform media backend.
//
// The backend is opaque: it loads a URI into a handle and drives transport on
// that handle. Decoding, buffering and output are entirely its business.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Handle identifies a loaded media resource. Zero means no handle.
type Handle uint64

// InterruptionMode tells the platform how to treat other audio.
type InterruptionMode string

const (
	InterruptionMixWithOthers InterruptionMode = "mix_with_others"
	InterruptionDoNotMix      InterruptionMode = "do_not_mix"
	InterruptionDuckOthers    InterruptionMode = "duck_others"
)

// SessionOptions describes the audio session requested at startup.
type SessionOptions struct {
	StaysActiveInBackground bool
	PlaysInSilentMode       bool
	DuckOthers              bool
	PlayThroughEarpiece     bool
	InterruptionMode        InterruptionMode
}

// Backend is the platform media capability.
type Backend interface {
	ConfigureSession(ctx context.Context, opts SessionOptions) error
	Load(ctx context.Context, uri string) (Handle, error)
	Play(ctx context.Context, h Handle) error
	Pause(ctx context.Context, h Handle) error
	Stop(ctx context.Context, h Handle) error
	Seek(ctx context.Context, h Handle, pos time.Duration) error
	Unload(ctx context.Context, h Handle) error
}

// ErrUnknownHandle is returned for operations on a handle the backend does not hold.
var ErrUnknownHandle = errors.New("unknown media handle")

// LoadError reports a failed Load.
type LoadError struct {
	URI string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.URI, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TransportError reports a failed play, pause, stop, seek or unload.
type TransportError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s handle %d: %v", e.Op, e.Handle, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsLoadError reports whether err wraps a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsTransportError reports whether err wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
