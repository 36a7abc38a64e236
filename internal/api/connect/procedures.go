package connect

// PlayerServiceName is the fully-qualified name of the player service.
const PlayerServiceName = "tunedeck.v1.PlayerService"

// Procedure paths of PlayerService.
const (
	PlayerServiceGetStateProcedure        = "/tunedeck.v1.PlayerService/GetState"
	PlayerServicePlayTrackProcedure       = "/tunedeck.v1.PlayerService/PlayTrack"
	PlayerServicePlayAtProcedure          = "/tunedeck.v1.PlayerService/PlayAt"
	PlayerServicePauseProcedure           = "/tunedeck.v1.PlayerService/Pause"
	PlayerServiceResumeProcedure          = "/tunedeck.v1.PlayerService/Resume"
	PlayerServiceStopProcedure            = "/tunedeck.v1.PlayerService/Stop"
	PlayerServiceSeekToProcedure          = "/tunedeck.v1.PlayerService/SeekTo"
	PlayerServiceSkipNextProcedure        = "/tunedeck.v1.PlayerService/SkipNext"
	PlayerServiceSkipPreviousProcedure    = "/tunedeck.v1.PlayerService/SkipPrevious"
	PlayerServiceAddToQueueProcedure      = "/tunedeck.v1.PlayerService/AddToQueue"
	PlayerServiceRemoveFromQueueProcedure = "/tunedeck.v1.PlayerService/RemoveFromQueue"
	PlayerServiceSetRepeatProcedure       = "/tunedeck.v1.PlayerService/SetRepeat"
	PlayerServiceCycleRepeatProcedure     = "/tunedeck.v1.PlayerService/CycleRepeat"
	PlayerServiceSetShuffleProcedure      = "/tunedeck.v1.PlayerService/SetShuffle"
	PlayerServiceListCatalogProcedure     = "/tunedeck.v1.PlayerService/ListCatalog"
	PlayerServiceWatchProcedure           = "/tunedeck.v1.PlayerService/Watch"
)

// readOnlyProcedures never require the player token.
var readOnlyProcedures = map[string]bool{
	PlayerServiceGetStateProcedure:    true,
	PlayerServiceListCatalogProcedure: true,
	PlayerServiceWatchProcedure:       true,
}
