// Package main provides the control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/tunedeck/internal/api/connect"
	"github.com/osa030/tunedeck/internal/app/notification"
	"github.com/osa030/tunedeck/internal/app/playback"
)

var (
	app    = kingpin.New("tunedeck-ctl", "tunedeck playback control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Player token (or set TUNEDECK_TOKEN env)").Envar("TUNEDECK_TOKEN").String()

	statusCmd  = app.Command("status", "Show the playback state")
	catalogCmd = app.Command("catalog", "List catalog tracks")

	playCmd   = app.Command("play", "Play a track by id or Spotify track URI")
	playTrack = playCmd.Arg("track-id", "Track ID").Required().String()

	jumpCmd   = app.Command("jump", "Play the queue entry at an index")
	jumpIndex = jumpCmd.Arg("index", "Queue index (0-based)").Required().Int()

	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")
	stopCmd   = app.Command("stop", "Stop playback and rewind")

	seekCmd = app.Command("seek", "Seek within the current track")
	seekPos = seekCmd.Arg("position", "Position (e.g. 90s, 1m30s)").Required().Duration()

	nextCmd = app.Command("next", "Skip to the next track")
	prevCmd = app.Command("prev", "Restart or go to the previous track")

	addCmd = app.Command("add", "Add tracks to the queue")
	addIDs = addCmd.Arg("track-ids", "Track IDs").Required().Strings()

	removeCmd   = app.Command("remove", "Remove a queue entry")
	removeIndex = removeCmd.Arg("index", "Queue index (0-based)").Required().Int()

	repeatCmd  = app.Command("repeat", "Set the repeat mode, or cycle off, all, one")
	repeatMode = repeatCmd.Arg("mode", "Repeat mode").Required().Enum("off", "all", "one", "cycle")

	shuffleCmd   = app.Command("shuffle", "Turn shuffle on or off")
	shuffleState = shuffleCmd.Arg("state", "on or off").Required().Enum("on", "off")

	watchCmd = app.Command("watch", "Stream playback notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		state playback.Snapshot
		err   error
	)
	switch command {
	case statusCmd.FullCommand():
		state, err = client.GetState(ctx)
	case catalogCmd.FullCommand():
		listCatalog(ctx, client)
		return
	case playCmd.FullCommand():
		state, err = client.PlayTrack(ctx, *playTrack)
	case jumpCmd.FullCommand():
		state, err = client.PlayAt(ctx, *jumpIndex)
	case pauseCmd.FullCommand():
		state, err = client.Pause(ctx)
	case resumeCmd.FullCommand():
		state, err = client.Resume(ctx)
	case stopCmd.FullCommand():
		state, err = client.Stop(ctx)
	case seekCmd.FullCommand():
		state, err = client.SeekTo(ctx, *seekPos)
	case nextCmd.FullCommand():
		state, err = client.SkipNext(ctx)
	case prevCmd.FullCommand():
		state, err = client.SkipPrevious(ctx)
	case addCmd.FullCommand():
		addToQueue(ctx, client, *addIDs)
		return
	case removeCmd.FullCommand():
		state, err = client.RemoveFromQueue(ctx, *removeIndex)
	case repeatCmd.FullCommand():
		if *repeatMode == "cycle" {
			state, err = client.CycleRepeat(ctx)
		} else {
			state, err = client.SetRepeat(ctx, *repeatMode)
		}
	case shuffleCmd.FullCommand():
		state, err = client.SetShuffle(ctx, *shuffleState == "on")
	case watchCmd.FullCommand():
		cancel()
		watch(client)
		return
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printState(state)
}

func listCatalog(ctx context.Context, client *apiconnect.Client) {
	tracks, err := client.ListCatalog(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Catalog (%d tracks):\n", len(tracks))
	for _, t := range tracks {
		fmt.Printf("  %-24s %s [%s]\n", t.ID, t.Label(), formatDuration(t.Duration))
	}
}

func addToQueue(ctx context.Context, client *apiconnect.Client, ids []string) {
	results, state, err := client.AddToQueue(ctx, ids...)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, r := range results {
		if r.Accepted {
			fmt.Printf("Added: %s\n", r.TrackID)
		} else {
			fmt.Printf("Rejected [%s by %s]: %s\n", r.Code, r.Filter, r.TrackID)
		}
	}
	printState(state)
}

func watch(client *apiconnect.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching playback. Press Ctrl+C to exit.")
	err := client.Watch(ctx, func(n *notification.Notification) error {
		printNotification(n)
		return nil
	})
	if err != nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}

func printNotification(n *notification.Notification) {
	fmt.Printf("\n[Sequence: %d] ", n.SequenceNo)
	switch n.Type {
	case "initial_state":
		fmt.Println("=== INITIAL STATE ===")
		printState(n.Snapshot)
	case "position_changed":
		fmt.Printf("position %s / %s\n", formatDuration(n.Snapshot.Position), formatDuration(n.Snapshot.Duration))
	case "error":
		fmt.Printf("=== ERROR === %s\n", n.Error)
	default:
		fmt.Printf("=== %s ===\n", n.Type)
		printState(n.Snapshot)
	}
}

func printState(s playback.Snapshot) {
	fmt.Println("\n=== PLAYBACK STATE ===")
	if s.CurrentTrack != nil {
		fmt.Printf("Current: %s\n", s.CurrentTrack.Label())
		fmt.Printf("  %s  %s / %s\n", formatTransport(s), formatDuration(s.Position), formatDuration(s.Duration))
	} else {
		fmt.Println("No track selected")
	}
	fmt.Printf("Repeat: %s  Shuffle: %t\n", s.Repeat, s.Shuffle)

	fmt.Printf("\nQueue (%d):\n", len(s.Queue))
	for i, t := range s.Queue {
		marker := "  "
		if i == s.CurrentIndex {
			marker = "> "
		}
		fmt.Printf("%s%2d. %s [%s]\n", marker, i, t.Label(), formatDuration(t.Duration))
	}
	fmt.Println()
}

func formatTransport(s playback.Snapshot) string {
	switch {
	case s.IsLoading:
		return "Loading"
	case s.IsPlaying:
		return "Playing"
	default:
		return "Paused"
	}
}

// formatDuration renders m:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

