// Package main obtains a Spotify refresh token for the catalog, checks the
// configured playlists with it and prints the config block to paste.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/osa030/tunedeck/internal/infra/config"
	"github.com/osa030/tunedeck/internal/infra/logger"
	"github.com/osa030/tunedeck/internal/infra/spotify"
)

var (
	app          = kingpin.New("tunedeck-auth", "Authorize tunedeck to read Spotify playlists for its catalog")
	configPath   = app.Flag("config", "Server config whose spotify playlists are checked").Default("config/server.yaml").String()
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").String()
	playlists    = app.Flag("playlist", "Additional playlist URL or URI to check (repeatable)").Strings()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	timeout      = app.Flag("timeout", "How long to wait for the browser").Default("5m").Duration()
)

const donePage = `<!DOCTYPE html>
<html><head><title>tunedeck</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>tunedeck is authorized</h1><p>Return to the terminal.</p>
</body></html>
`

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		kingpin.Fatalf("failed to initialize logger: %v", err)
	}

	if err := run(); err != nil {
		zlog.Error().Msgf("auth failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadIncomplete(*configPath)
	if err != nil {
		return err
	}
	// Flags and env win over the config file.
	if *clientID != "" {
		cfg.Spotify.ClientID = *clientID
	}
	if *clientSecret != "" {
		cfg.Spotify.ClientSecret = *clientSecret
	}
	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		return errors.New("client id and secret are required (flags, SPOTIFY_* env or config)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := authorize(ctx, cfg.Spotify)
	if err != nil {
		return err
	}
	cfg.Spotify.RefreshToken = token.RefreshToken

	urls := append(cfg.SpotifyPlaylists(), *playlists...)
	if err := checkPlaylists(ctx, cfg.Spotify, urls); err != nil {
		return err
	}

	return printConfig(cfg.Spotify, urls)
}

// authorize runs the authorization code flow through a local callback server.
func authorize(ctx context.Context, sc config.SpotifyConfig) (*oauth2.Token, error) {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
		spotifyauth.WithClientID(sc.ClientID),
		spotifyauth.WithClientSecret(sc.ClientSecret),
		spotifyauth.WithScopes(spotify.Scopes...),
	)
	state := uuid.NewString()

	type result struct {
		token *oauth2.Token
		err   error
	}
	resultCh := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("ignoring callback with state %q", st)
			return
		}
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
		} else {
			fmt.Fprint(w, donePage)
		}
		select {
		case resultCh <- result{token: token, err: err}:
		default:
		}
	})

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *port))
	if err != nil {
		return nil, errors.Wrap(err, "failed to start callback server")
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(ln) //nolint:errcheck // returns on Shutdown
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Warn().Msgf("failed to shut down callback server: %v", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "Open this URL to authorize tunedeck:\n\n  %s\n\nWaiting for authorization...\n", auth.AuthURL(state))

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "no authorization received")
	case res := <-resultCh:
		if res.err != nil {
			return nil, errors.Wrap(res.err, "token exchange failed")
		}
		if res.token.RefreshToken == "" {
			return nil, errors.New("spotify returned no refresh token")
		}
		zlog.Info().Msg("authorization complete")
		return res.token, nil
	}
}

// checkPlaylists confirms the new token can read every playlist the catalog will load.
func checkPlaylists(ctx context.Context, sc config.SpotifyConfig, urls []string) error {
	if len(urls) == 0 {
		zlog.Warn().Msg("no spotify playlists configured; pass --playlist to check one")
		return nil
	}

	client, err := spotify.New(ctx, spotify.Config{
		ClientID:     sc.ClientID,
		ClientSecret: sc.ClientSecret,
		RefreshToken: sc.RefreshToken,
		Market:       sc.Market,
	})
	if err != nil {
		return err
	}

	var failed int
	for _, url := range urls {
		if err := client.CheckPlaylistExists(ctx, url); err != nil {
			zlog.Error().Msgf("playlist %s: %v", url, err)
			failed++
			continue
		}
		zlog.Info().Msgf("playlist %s: readable", url)
	}
	if failed > 0 {
		return errors.Newf("%d of %d playlists are not readable with this account", failed, len(urls))
	}
	return nil
}

// printConfig writes the spotify and catalog sections for server.yaml to stdout.
func printConfig(sc config.SpotifyConfig, urls []string) error {
	type spotifySection struct {
		RefreshToken string `yaml:"refresh_token"`
		Market       string `yaml:"market"`
	}
	out := struct {
		Spotify spotifySection       `yaml:"spotify"`
		Catalog config.CatalogConfig `yaml:"catalog,omitempty"`
	}{
		Spotify: spotifySection{RefreshToken: sc.RefreshToken, Market: sc.Market},
	}
	for _, url := range urls {
		out.Catalog.Providers = append(out.Catalog.Providers, config.ProviderConfig{
			Type:        config.ProviderSpotify,
			DisplayName: "Spotify",
			Settings:    map[string]any{"playlist_url": url},
		})
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "failed to render config")
	}
	fmt.Fprintln(os.Stderr, "\nAdd this to your server.yaml (or export SPOTIFY_REFRESH_TOKEN):")
	fmt.Print(string(data))
	return nil
}
