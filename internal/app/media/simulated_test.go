package media

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_Load(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{name: "https", uri: "https://example.com/a.wav", wantErr: false},
		{name: "asset", uri: "asset://tracks/a.mp3", wantErr: false},
		{name: "file", uri: "file:///tmp/a.flac", wantErr: false},
		{name: "spotify", uri: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", wantErr: false},
		{name: "unsupported scheme", uri: "ftp://example.com/a.wav", wantErr: true},
		{name: "no scheme", uri: "a.wav", wantErr: true},
		{name: "malformed", uri: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulated(0)
			h, err := s.Load(context.Background(), tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsLoadError(err))
				assert.Zero(t, h)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, h)
			assert.Equal(t, 1, s.Loaded())
		})
	}
}

func TestSimulated_Transport(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated(0)

	h, err := s.Load(ctx, "https://example.com/a.wav")
	require.NoError(t, err)

	require.NoError(t, s.Play(ctx, h))
	assert.True(t, s.IsPlaying(h))

	require.NoError(t, s.Seek(ctx, h, 30*time.Second))
	require.NoError(t, s.Pause(ctx, h))
	assert.False(t, s.IsPlaying(h))

	require.NoError(t, s.Unload(ctx, h))
	assert.Equal(t, 0, s.Loaded())

	err = s.Play(ctx, h)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.True(t, errors.Is(err, ErrUnknownHandle))
}

func TestSimulated_LoadHonorsContext(t *testing.T) {
	s := NewSimulated(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx, "https://example.com/a.wav")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, s.Loaded())
}

func TestSimulated_ConfigureSession(t *testing.T) {
	s := NewSimulated(0)
	err := s.ConfigureSession(context.Background(), SessionOptions{
		StaysActiveInBackground: true,
		PlaysInSilentMode:       true,
		DuckOthers:              true,
		InterruptionMode:        InterruptionDuckOthers,
	})
	assert.NoError(t, err)
}

func TestMock_Errors(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	m.SetLoadError("bad://x", errors.New("boom"))

	_, err := m.Load(ctx, "bad://x")
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "bad://x", le.URI)

	h, err := m.Load(ctx, "good://x")
	require.NoError(t, err)

	m.SetOpError("pause", errors.New("device lost"))
	err = m.Pause(ctx, h)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "pause", te.Op)

	require.NoError(t, m.Unload(ctx, h))
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, []string{"bad://x", "good://x"}, m.LoadedURIs())
}
