// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/tunedeck/internal/api/connect"
	"github.com/osa030/tunedeck/internal/app/catalog"
	"github.com/osa030/tunedeck/internal/app/filter"
	"github.com/osa030/tunedeck/internal/app/media"
	"github.com/osa030/tunedeck/internal/app/session"
	"github.com/osa030/tunedeck/internal/infra/config"
	"github.com/osa030/tunedeck/internal/infra/logger"
	"github.com/osa030/tunedeck/internal/infra/spotify"
	"github.com/osa030/tunedeck/internal/infra/store"
)

var (
	app        = kingpin.New("tunedeck-server", "tunedeck playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	noColor    = app.Flag("no-color", "Disable colored console output").Bool()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")

	// reset command
	resetCmd = app.Command("reset", "Delete the saved playback session and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output:  "stdout",
		Level:   "info",
		NoColor: *noColor,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog() //nolint:errcheck

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == resetCmd.FullCommand() {
		if err := resetSession(cfg); err != nil {
			zlog.Fatal().Msgf("Failed to reset session: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		closeLog() //nolint:errcheck
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Both stay nil without Spotify credentials
	var (
		spotifyClient catalog.SpotifyClient
		resolver      catalog.TrackResolver
	)
	if cfg.Spotify.HasCredentials() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		if cfg.UsesProvider(config.ProviderSpotify) {
			if err := validatePlaylists(ctx, cfg, client); err != nil {
				return errors.Wrap(err, "playlist validation failed")
			}
			spotifyClient = client
		}
		resolver = catalog.NewSpotifyResolver(client)
		zlog.Info().Msg("Spotify track references can be queued by URI")
	}

	providers, err := catalog.NewProviderChainFromConfig(cfg, spotifyClient)
	if err != nil {
		return errors.Wrap(err, "failed to create catalog")
	}

	// nil unless persistence is enabled
	var sessionStore session.Store
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path, cfg.Store.SaveDebounce())
		if err != nil {
			return errors.Wrap(err, "failed to open store")
		}
		defer func() {
			if err := st.Close(); err != nil {
				zlog.Error().Msgf("Failed to close store: %v", err)
			}
		}()
		sessionStore = st
	}

	sessionMgr, err := session.NewManager(ctx, session.Options{
		Config:   cfg,
		Backend:  media.NewSimulated(cfg.Media.LoadLatency()),
		Catalog:  providers,
		Resolver: resolver,
		Store:    sessionStore,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	// Close is idempotent; this covers early returns.
	defer sessionMgr.Close()

	if cfg.Server.Token == "" {
		zlog.Warn().Msg("server.token is not set; mutating calls are unauthenticated")
	}

	mux := http.NewServeMux()
	playerPath, playerHandler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(sessionMgr),
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.Token)),
	)
	mux.Handle(playerPath, playerHandler)

	// h2c (HTTP/2 cleartext) for server streaming without TLS
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running hooks that may connect to it
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the session first so Watch streams end
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return nil
}

// resetSession clears the saved session at the configured store path.
func resetSession(cfg *config.Config) error {
	st, err := store.Open(cfg.Store.Path, cfg.Store.SaveDebounce())
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.Clear(); err != nil {
		return err
	}
	zlog.Info().Msg("Saved session deleted")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registry[name](filter.Deps{})
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validatePlaylists checks that configured Spotify playlists exist.
// This uses lightweight checks to avoid fetching all tracks during startup,
// retrying to ride out transient errors.
func validatePlaylists(ctx context.Context, cfg *config.Config, spotifyClient *spotify.Client) error {
	maxRetries := 5
	baseDelay := 1 * time.Second

	validate := func(url string) error {
		zlog.Info().Msgf("Validating playlist: url=%s", url)

		var lastErr error
		for i := 0; i < maxRetries; i++ {
			if i > 0 {
				delay := baseDelay * time.Duration(1<<uint(i-1))
				zlog.Info().Msgf("Retrying playlist validation in %v...", delay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if err := spotifyClient.CheckPlaylistExists(ctx, url); err != nil {
				lastErr = err
				zlog.Warn().Msgf("Failed to validate playlist (attempt %d/%d): %v", i+1, maxRetries, err)
				continue
			}

			zlog.Info().Msg("Playlist validated successfully")
			return nil
		}
		return errors.Wrapf(lastErr, "failed after %d attempts", maxRetries)
	}

	var errs []string
	for i, p := range cfg.Catalog.Providers {
		if p.Type != config.ProviderSpotify {
			continue
		}
		url, _ := p.Settings["playlist_url"].(string)
		if url == "" {
			errs = append(errs, fmt.Sprintf("provider %d: playlist_url is required", i))
			continue
		}
		if err := validate(url); err != nil {
			errs = append(errs, fmt.Sprintf("provider %d (%s): %v", i, url, err))
		}
	}

	if len(errs) > 0 {
		return errors.Newf("playlist validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
