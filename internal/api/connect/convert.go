package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/tunedeck/internal/app/media"
	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/app/session"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// Wire shapes of the Struct payloads. Durations travel as milliseconds.
type trackView struct {
	ID         string `mapstructure:"id"`
	Title      string `mapstructure:"title"`
	Artist     string `mapstructure:"artist"`
	Album      string `mapstructure:"album"`
	Image      string `mapstructure:"image"`
	URI        string `mapstructure:"uri"`
	DurationMs int64  `mapstructure:"duration_ms"`
}

type stateView struct {
	CurrentTrack *trackView  `mapstructure:"current_track"`
	CurrentIndex int         `mapstructure:"current_index"`
	Queue        []trackView `mapstructure:"queue"`
	PositionMs   int64       `mapstructure:"position_ms"`
	DurationMs   int64       `mapstructure:"duration_ms"`
	IsPlaying    bool        `mapstructure:"is_playing"`
	IsLoading    bool        `mapstructure:"is_loading"`
	Repeat       string      `mapstructure:"repeat"`
	Shuffle      bool        `mapstructure:"shuffle"`
}

type notificationView struct {
	SequenceNo uint64    `mapstructure:"sequence_no"`
	Type       string    `mapstructure:"type"`
	State      stateView `mapstructure:"state"`
	Error      string    `mapstructure:"error"`
}

type addResultView struct {
	TrackID  string `mapstructure:"track_id"`
	Accepted bool   `mapstructure:"accepted"`
	Code     string `mapstructure:"code"`
	Filter   string `mapstructure:"filter"`
}

func trackMap(t track.Track) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"artist":      t.Artist,
		"album":       t.Album,
		"image":       t.Image,
		"uri":         t.URI,
		"duration_ms": t.DurationMs(),
	}
}

func trackList(tracks []track.Track) []any {
	out := make([]any, len(tracks))
	for i, t := range tracks {
		out[i] = trackMap(t)
	}
	return out
}

func snapshotMap(s playback.Snapshot) map[string]any {
	m := map[string]any{
		"current_track": nil,
		"current_index": s.CurrentIndex,
		"queue":         trackList(s.Queue),
		"position_ms":   s.Position.Milliseconds(),
		"duration_ms":   s.Duration.Milliseconds(),
		"is_playing":    s.IsPlaying,
		"is_loading":    s.IsLoading,
		"repeat":        s.Repeat.String(),
		"shuffle":       s.Shuffle,
	}
	if s.CurrentTrack != nil {
		m["current_track"] = trackMap(*s.CurrentTrack)
	}
	return m
}

func snapshotStruct(s playback.Snapshot) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(snapshotMap(s))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode state")
	}
	return st, nil
}

func notificationStruct(n *notification.Notification) (*structpb.Struct, error) {
	m := map[string]any{
		"sequence_no": n.SequenceNo,
		"type":        n.Type,
		"state":       snapshotMap(n.Snapshot),
	}
	if n.Error != "" {
		m["error"] = n.Error
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode notification")
	}
	return st, nil
}

func addResultsStruct(results []session.AddResult, s playback.Snapshot) (*structpb.Struct, error) {
	list := make([]any, len(results))
	for i, r := range results {
		list[i] = map[string]any{
			"track_id": r.TrackID,
			"accepted": r.Accepted,
			"code":     r.Code,
			"filter":   r.Filter,
		}
	}
	st, err := structpb.NewStruct(map[string]any{
		"results": list,
		"state":   snapshotMap(s),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode results")
	}
	return st, nil
}

// decode maps a Struct-derived value onto a view. Numbers arrive as float64.
func decode(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	return errors.Wrap(decoder.Decode(input), "failed to decode payload")
}

func (v trackView) track() track.Track {
	return track.Track{
		ID:       v.ID,
		Title:    v.Title,
		Artist:   v.Artist,
		Album:    v.Album,
		Image:    v.Image,
		URI:      v.URI,
		Duration: time.Duration(v.DurationMs) * time.Millisecond,
	}
}

func (v stateView) snapshot() playback.Snapshot {
	s := playback.Snapshot{
		CurrentIndex: v.CurrentIndex,
		Queue:        make([]track.Track, len(v.Queue)),
		Position:     time.Duration(v.PositionMs) * time.Millisecond,
		Duration:     time.Duration(v.DurationMs) * time.Millisecond,
		IsPlaying:    v.IsPlaying,
		IsLoading:    v.IsLoading,
		Shuffle:      v.Shuffle,
	}
	for i, t := range v.Queue {
		s.Queue[i] = t.track()
	}
	if v.CurrentTrack != nil {
		t := v.CurrentTrack.track()
		s.CurrentTrack = &t
	}
	// Unknown names fall back to off.
	s.Repeat, _ = playback.ParseRepeatMode(v.Repeat)
	return s
}

// DecodeState converts a GetState payload back into a snapshot.
func DecodeState(st *structpb.Struct) (playback.Snapshot, error) {
	var v stateView
	if err := decode(st.AsMap(), &v); err != nil {
		return playback.Snapshot{}, err
	}
	return v.snapshot(), nil
}

// DecodeNotification converts a Watch payload back into a notification.
func DecodeNotification(st *structpb.Struct) (*notification.Notification, error) {
	var v notificationView
	if err := decode(st.AsMap(), &v); err != nil {
		return nil, err
	}
	return &notification.Notification{
		SequenceNo: v.SequenceNo,
		Type:       v.Type,
		Snapshot:   v.State.snapshot(),
		Error:      v.Error,
	}, nil
}

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	code := connect.CodeInternal
	switch {
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, session.ErrTrackNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, playback.ErrIndexOutOfRange):
		code = connect.CodeOutOfRange
	case errors.Is(err, playback.ErrInvalidRepeatMode),
		errors.Is(err, track.ErrMissingID),
		errors.Is(err, track.ErrMissingURI),
		errors.Is(err, track.ErrInvalidDuration):
		code = connect.CodeInvalidArgument
	case errors.Is(err, playback.ErrNoTrack), errors.Is(err, playback.ErrQueueEmpty):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, playback.ErrSuperseded):
		code = connect.CodeAborted
	case errors.Is(err, playback.ErrClosed):
		code = connect.CodeUnavailable
	case media.IsLoadError(err):
		code = connect.CodeFailedPrecondition
	case media.IsTransportError(err):
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, err)
}
