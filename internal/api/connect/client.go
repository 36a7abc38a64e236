package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
	"github.com/osa030/tunedeck/internal/app/session"
	"github.com/osa030/tunedeck/internal/domain/track"
)

// Client is a typed client for PlayerService.
type Client struct {
	getState        *connect.Client[emptypb.Empty, structpb.Struct]
	playTrack       *connect.Client[wrapperspb.StringValue, structpb.Struct]
	playAt          *connect.Client[wrapperspb.Int64Value, structpb.Struct]
	pause           *connect.Client[emptypb.Empty, structpb.Struct]
	resume          *connect.Client[emptypb.Empty, structpb.Struct]
	stop            *connect.Client[emptypb.Empty, structpb.Struct]
	seekTo          *connect.Client[wrapperspb.Int64Value, structpb.Struct]
	skipNext        *connect.Client[emptypb.Empty, structpb.Struct]
	skipPrevious    *connect.Client[emptypb.Empty, structpb.Struct]
	addToQueue      *connect.Client[structpb.ListValue, structpb.Struct]
	removeFromQueue *connect.Client[wrapperspb.Int64Value, structpb.Struct]
	setRepeat       *connect.Client[wrapperspb.StringValue, structpb.Struct]
	cycleRepeat     *connect.Client[emptypb.Empty, structpb.Struct]
	setShuffle      *connect.Client[wrapperspb.BoolValue, structpb.Struct]
	listCatalog     *connect.Client[emptypb.Empty, structpb.ListValue]
	watch           *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewClient creates a PlayerService client for baseURL (e.g. http://localhost:8080).
// token is sent on every unary call when non-empty.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithInterceptors(NewClientTokenInterceptor(token))}, opts...)
	return &Client{
		getState:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceGetStateProcedure, opts...),
		playTrack:       connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+PlayerServicePlayTrackProcedure, opts...),
		playAt:          connect.NewClient[wrapperspb.Int64Value, structpb.Struct](httpClient, baseURL+PlayerServicePlayAtProcedure, opts...),
		pause:           connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServicePauseProcedure, opts...),
		resume:          connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceResumeProcedure, opts...),
		stop:            connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceStopProcedure, opts...),
		seekTo:          connect.NewClient[wrapperspb.Int64Value, structpb.Struct](httpClient, baseURL+PlayerServiceSeekToProcedure, opts...),
		skipNext:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceSkipNextProcedure, opts...),
		skipPrevious:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceSkipPreviousProcedure, opts...),
		addToQueue:      connect.NewClient[structpb.ListValue, structpb.Struct](httpClient, baseURL+PlayerServiceAddToQueueProcedure, opts...),
		removeFromQueue: connect.NewClient[wrapperspb.Int64Value, structpb.Struct](httpClient, baseURL+PlayerServiceRemoveFromQueueProcedure, opts...),
		setRepeat:       connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+PlayerServiceSetRepeatProcedure, opts...),
		cycleRepeat:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceCycleRepeatProcedure, opts...),
		setShuffle:      connect.NewClient[wrapperspb.BoolValue, structpb.Struct](httpClient, baseURL+PlayerServiceSetShuffleProcedure, opts...),
		listCatalog:     connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+PlayerServiceListCatalogProcedure, opts...),
		watch:           connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceWatchProcedure, opts...),
	}
}

func stateOf(resp *connect.Response[structpb.Struct], err error) (playback.Snapshot, error) {
	if err != nil {
		return playback.Snapshot{}, err
	}
	return DecodeState(resp.Msg)
}

func empty() *connect.Request[emptypb.Empty] {
	return connect.NewRequest(&emptypb.Empty{})
}

// GetState returns the current playback state.
func (c *Client) GetState(ctx context.Context) (playback.Snapshot, error) {
	return stateOf(c.getState.CallUnary(ctx, empty()))
}

func (c *Client) PlayTrack(ctx context.Context, id string) (playback.Snapshot, error) {
	return stateOf(c.playTrack.CallUnary(ctx, connect.NewRequest(wrapperspb.String(id))))
}

// PlayAt plays the queue entry at index.
func (c *Client) PlayAt(ctx context.Context, index int) (playback.Snapshot, error) {
	return stateOf(c.playAt.CallUnary(ctx, connect.NewRequest(wrapperspb.Int64(int64(index)))))
}

func (c *Client) Pause(ctx context.Context) (playback.Snapshot, error) {
	return stateOf(c.pause.CallUnary(ctx, empty()))
}

func (c *Client) Resume(ctx context.Context) (playback.Snapshot, error) {
	return stateOf(c.resume.CallUnary(ctx, empty()))
}

func (c *Client) Stop(ctx context.Context) (playback.Snapshot, error) {
	return stateOf(c.stop.CallUnary(ctx, empty()))
}

func (c *Client) SeekTo(ctx context.Context, pos time.Duration) (playback.Snapshot, error) {
	return stateOf(c.seekTo.CallUnary(ctx, connect.NewRequest(wrapperspb.Int64(pos.Milliseconds()))))
}

func (c *Client) SkipNext(ctx context.Context) (playback.Snapshot, error) {
	return stateOf(c.skipNext.CallUnary(ctx, empty()))
}

func (c *Client) SkipPrevious(ctx context.Context) (playback.Snapshot, error) {
	return stateOf(c.skipPrevious.CallUnary(ctx, empty()))
}

// AddToQueue requests the ids be queued and reports each admission result.
func (c *Client) AddToQueue(ctx context.Context, ids ...string) ([]session.AddResult, playback.Snapshot, error) {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, playback.Snapshot{}, errors.Wrap(err, "failed to encode track ids")
	}

	resp, err := c.addToQueue.CallUnary(ctx, connect.NewRequest(list))
	if err != nil {
		return nil, playback.Snapshot{}, err
	}

	var v struct {
		Results []addResultView `mapstructure:"results"`
		State   stateView       `mapstructure:"state"`
	}
	if err := decode(resp.Msg.AsMap(), &v); err != nil {
		return nil, playback.Snapshot{}, err
	}
	results := make([]session.AddResult, len(v.Results))
	for i, r := range v.Results {
		results[i] = session.AddResult(r)
	}
	return results, v.State.snapshot(), nil
}

func (c *Client) RemoveFromQueue(ctx context.Context, index int) (playback.Snapshot, error) {
	return stateOf(c.removeFromQueue.CallUnary(ctx, connect.NewRequest(wrapperspb.Int64(int64(index)))))
}

func (c *Client) SetRepeat(ctx context.Context, mode string) (playback.Snapshot, error) {
	return stateOf(c.setRepeat.CallUnary(ctx, connect.NewRequest(wrapperspb.String(mode))))
}

// CycleRepeat advances the repeat mode and returns the new state.
func (c *Client) CycleRepeat(ctx context.Context) (playback.Snapshot, error) {
	return stateOf(c.cycleRepeat.CallUnary(ctx, empty()))
}

func (c *Client) SetShuffle(ctx context.Context, enabled bool) (playback.Snapshot, error) {
	return stateOf(c.setShuffle.CallUnary(ctx, connect.NewRequest(wrapperspb.Bool(enabled))))
}

// ListCatalog returns the server's catalog.
func (c *Client) ListCatalog(ctx context.Context) ([]track.Track, error) {
	resp, err := c.listCatalog.CallUnary(ctx, empty())
	if err != nil {
		return nil, err
	}
	var views []trackView
	if err := decode(resp.Msg.AsSlice(), &views); err != nil {
		return nil, err
	}
	tracks := make([]track.Track, len(views))
	for i, v := range views {
		tracks[i] = v.track()
	}
	return tracks, nil
}

// Watch calls fn for the initial state and every notification after it,
// until ctx is done, the server ends the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(*notification.Notification) error) error {
	stream, err := c.watch.CallServerStream(ctx, empty())
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		n, err := DecodeNotification(stream.Msg())
		if err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && connect.CodeOf(err) != connect.CodeCanceled {
		return err
	}
	return nil
}
