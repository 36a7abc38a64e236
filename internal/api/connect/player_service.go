package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/app/session"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// Player is the session surface the service exposes.
// *session.Manager implements it.
type Player interface {
	State() playback.Snapshot
	Catalog() []track.Track
	Notifications() *notification.Manager
	Done() <-chan struct{}

	PlayTrack(ctx context.Context, id string) error
	PlayAt(ctx context.Context, index int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	SeekTo(ctx context.Context, pos time.Duration) error
	SkipNext(ctx context.Context) error
	SkipPrevious(ctx context.Context) error
	AddToQueue(ctx context.Context, ids ...string) ([]session.AddResult, error)
	RemoveFromQueue(ctx context.Context, index int) error
	SetRepeat(mode string) error
	CycleRepeat() (playback.RepeatMode, error)
	SetShuffle(enabled bool) error
}

var _ Player = (*session.Manager)(nil)

var errNoTrackIDs = errors.New("track ids must be non-empty strings")

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player Player
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player Player) *PlayerService {
	return &PlayerService{player: player}
}

// NewPlayerServiceHandler builds an HTTP handler for the service.
// It returns the path on which to mount the handler and the handler itself.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	handlers := map[string]http.Handler{
		PlayerServiceGetStateProcedure:        connect.NewUnaryHandler(PlayerServiceGetStateProcedure, svc.GetState, opts...),
		PlayerServicePlayTrackProcedure:       connect.NewUnaryHandler(PlayerServicePlayTrackProcedure, svc.PlayTrack, opts...),
		PlayerServicePlayAtProcedure:          connect.NewUnaryHandler(PlayerServicePlayAtProcedure, svc.PlayAt, opts...),
		PlayerServicePauseProcedure:           connect.NewUnaryHandler(PlayerServicePauseProcedure, svc.Pause, opts...),
		PlayerServiceResumeProcedure:          connect.NewUnaryHandler(PlayerServiceResumeProcedure, svc.Resume, opts...),
		PlayerServiceStopProcedure:            connect.NewUnaryHandler(PlayerServiceStopProcedure, svc.Stop, opts...),
		PlayerServiceSeekToProcedure:          connect.NewUnaryHandler(PlayerServiceSeekToProcedure, svc.SeekTo, opts...),
		PlayerServiceSkipNextProcedure:        connect.NewUnaryHandler(PlayerServiceSkipNextProcedure, svc.SkipNext, opts...),
		PlayerServiceSkipPreviousProcedure:    connect.NewUnaryHandler(PlayerServiceSkipPreviousProcedure, svc.SkipPrevious, opts...),
		PlayerServiceAddToQueueProcedure:      connect.NewUnaryHandler(PlayerServiceAddToQueueProcedure, svc.AddToQueue, opts...),
		PlayerServiceRemoveFromQueueProcedure: connect.NewUnaryHandler(PlayerServiceRemoveFromQueueProcedure, svc.RemoveFromQueue, opts...),
		PlayerServiceSetRepeatProcedure:       connect.NewUnaryHandler(PlayerServiceSetRepeatProcedure, svc.SetRepeat, opts...),
		PlayerServiceCycleRepeatProcedure:     connect.NewUnaryHandler(PlayerServiceCycleRepeatProcedure, svc.CycleRepeat, opts...),
		PlayerServiceSetShuffleProcedure:      connect.NewUnaryHandler(PlayerServiceSetShuffleProcedure, svc.SetShuffle, opts...),
		PlayerServiceListCatalogProcedure:     connect.NewUnaryHandler(PlayerServiceListCatalogProcedure, svc.ListCatalog, opts...),
		PlayerServiceWatchProcedure:           connect.NewServerStreamHandler(PlayerServiceWatchProcedure, svc.Watch, opts...),
	}
	return "/" + PlayerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// stateResponse returns the state after a successful call, or the mapped error.
func (s *PlayerService) stateResponse(err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	st, err := snapshotStruct(s.player.State())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// GetState returns the current playback state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(nil)
}

// PlayTrack plays the track whose id is in the request.
func (s *PlayerService) PlayTrack(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.PlayTrack(ctx, req.Msg.GetValue()))
}

// PlayAt plays the queue entry at the index in the request.
func (s *PlayerService) PlayAt(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int64Value],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.PlayAt(ctx, int(req.Msg.GetValue())))
}

func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.Pause(ctx))
}

func (s *PlayerService) Resume(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.Resume(ctx))
}

func (s *PlayerService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.Stop(ctx))
}

// SeekTo moves to the position in milliseconds.
func (s *PlayerService) SeekTo(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int64Value],
) (*connect.Response[structpb.Struct], error) {
	pos := time.Duration(req.Msg.GetValue()) * time.Millisecond
	return s.stateResponse(s.player.SeekTo(ctx, pos))
}

func (s *PlayerService) SkipNext(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.SkipNext(ctx))
}

func (s *PlayerService) SkipPrevious(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.SkipPrevious(ctx))
}

// AddToQueue appends the listed track ids, subject to the admission filters.
func (s *PlayerService) AddToQueue(
	ctx context.Context,
	req *connect.Request[structpb.ListValue],
) (*connect.Response[structpb.Struct], error) {
	values := req.Msg.GetValues()
	if len(values) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errNoTrackIDs)
	}
	ids := make([]string, len(values))
	for i, v := range values {
		id, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok || id.StringValue == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errNoTrackIDs)
		}
		ids[i] = id.StringValue
	}

	results, err := s.player.AddToQueue(ctx, ids...)
	if err != nil {
		return nil, toConnectError(err)
	}
	st, err := addResultsStruct(results, s.player.State())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// RemoveFromQueue removes the entry at the index in the request.
func (s *PlayerService) RemoveFromQueue(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int64Value],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.RemoveFromQueue(ctx, int(req.Msg.GetValue())))
}

// SetRepeat sets the repeat mode: "off", "all" or "one".
func (s *PlayerService) SetRepeat(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.SetRepeat(req.Msg.GetValue()))
}

// CycleRepeat advances the repeat mode off, all, one, off.
func (s *PlayerService) CycleRepeat(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	_, err := s.player.CycleRepeat()
	return s.stateResponse(err)
}

func (s *PlayerService) SetShuffle(
	ctx context.Context,
	req *connect.Request[wrapperspb.BoolValue],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse(s.player.SetShuffle(req.Msg.GetValue()))
}

// ListCatalog returns the catalog tracks.
func (s *PlayerService) ListCatalog(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.ListValue], error) {
	list, err := structpb.NewList(trackList(s.player.Catalog()))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(list), nil
}

// Watch sends the current state, then every playback notification until the
// client goes away or the session closes.
func (s *PlayerService) Watch(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	notifManager := s.player.Notifications()
	adapter := &notificationStreamAdapter{stream: stream}

	// Hold the stream while subscribing so the initial state goes out
	// before any broadcast.
	adapter.mu.Lock()
	subscriptionID := notifManager.Subscribe(adapter)
	defer notifManager.Unsubscribe(subscriptionID)

	err := adapter.sendLocked(&notification.Notification{
		SequenceNo: notifManager.SequenceNo(),
		Type:       "initial_state",
		Snapshot:   s.player.State(),
	})
	adapter.mu.Unlock()
	if err != nil {
		return err
	}
	defer adapter.close()
	zlog.Debug().Msgf("watch: subscribed: id=%s", subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.player.Done():
	}
	return nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized since a timed-out broadcast may still be writing.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
	closed bool
}

var errStreamClosed = errors.New("watch stream closed")

// close stops further sends once the handler has returned.
func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sendLocked(n)
}

func (a *notificationStreamAdapter) sendLocked(n *notification.Notification) error {
	if a.closed {
		return errStreamClosed
	}
	st, err := notificationStruct(n)
	if err != nil {
		return err
	}
	return a.stream.Send(st)
}
