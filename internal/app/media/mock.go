package media

import (
	"context"
	"sync"
	"time"
)

// Call records one invocation on the Mock.
type Call struct {
	Op     string
	URI    string
	Handle Handle
	Pos    time.Duration
}

// Mock is a test double for Backend.
type Mock struct {
	mu sync.Mutex

	next       Handle
	live       map[Handle]string
	calls      []Call
	session    *SessionOptions
	loadErrs   map[string]error
	opErrs     map[string]error
	sessionErr error

	// LoadFunc, when set, runs before Load returns. Tests use it to block
	// or fail loads for a particular uri.
	LoadFunc func(ctx context.Context, uri string) error
}

// NewMock creates a new mock backend.
func NewMock() *Mock {
	return &Mock{
		live:     make(map[Handle]string),
		loadErrs: make(map[string]error),
		opErrs:   make(map[string]error),
	}
}

func (m *Mock) ConfigureSession(_ context.Context, opts SessionOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "configure"})
	if m.sessionErr != nil {
		return m.sessionErr
	}
	m.session = &opts
	return nil
}

func (m *Mock) Load(ctx context.Context, uri string) (Handle, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: "load", URI: uri})
	fn := m.LoadFunc
	err := m.loadErrs[uri]
	m.mu.Unlock()

	if fn != nil {
		if ferr := fn(ctx, uri); ferr != nil {
			return 0, &LoadError{URI: uri, Err: ferr}
		}
	}
	if err != nil {
		return 0, &LoadError{URI: uri, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.live[m.next] = uri
	return m.next, nil
}

func (m *Mock) Play(_ context.Context, h Handle) error { return m.transport("play", h, 0) }

func (m *Mock) Pause(_ context.Context, h Handle) error { return m.transport("pause", h, 0) }

func (m *Mock) Stop(_ context.Context, h Handle) error { return m.transport("stop", h, 0) }

func (m *Mock) Seek(_ context.Context, h Handle, pos time.Duration) error {
	return m.transport("seek", h, pos)
}

func (m *Mock) Unload(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "unload", Handle: h})
	delete(m.live, h)
	if err := m.opErrs["unload"]; err != nil {
		return &TransportError{Op: "unload", Handle: h, Err: err}
	}
	return nil
}

func (m *Mock) transport(op string, h Handle, pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, Handle: h, Pos: pos})
	if err := m.opErrs[op]; err != nil {
		return &TransportError{Op: op, Handle: h, Err: err}
	}
	if _, ok := m.live[h]; !ok {
		return &TransportError{Op: op, Handle: h, Err: ErrUnknownHandle}
	}
	return nil
}

// Test helpers

// SetLoadError makes every Load of uri fail with err. A nil err clears it.
func (m *Mock) SetLoadError(uri string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.loadErrs, uri)
		return
	}
	m.loadErrs[uri] = err
}

// SetOpError makes every call of op ("play", "pause", "stop", "seek", "unload") fail.
func (m *Mock) SetOpError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.opErrs, op)
		return
	}
	m.opErrs[op] = err
}

// SetSessionError makes ConfigureSession fail.
func (m *Mock) SetSessionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionErr = err
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Call, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallsOf returns the recorded calls for one operation.
func (m *Mock) CallsOf(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Call
	for _, c := range m.calls {
		if c.Op == op {
			result = append(result, c)
		}
	}
	return result
}

// LoadedURIs returns the uris passed to Load, in order.
func (m *Mock) LoadedURIs() []string {
	var uris []string
	for _, c := range m.CallsOf("load") {
		uris = append(uris, c.URI)
	}
	return uris
}

// Live returns the number of handles loaded and not yet unloaded.
func (m *Mock) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Session returns the options passed to ConfigureSession, if any.
func (m *Mock) Session() *SessionOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Backend = (*Mock)(nil)
