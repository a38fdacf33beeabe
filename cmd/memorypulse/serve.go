// cmd/memorypulse/serve.go
//
// `memorypulse serve`.
// Responsibilities:
//   - Resolve config (env, .env, flags) and set up logging.
//   - Wire telemetry, the preference store, sessions and the HTTP server.
//   - Shut down on SIGINT/SIGTERM.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/memorypulse/internal/config"
	"github.com/robalobadob/memorypulse/internal/httpserver"
	"github.com/robalobadob/memorypulse/internal/levels"
	"github.com/robalobadob/memorypulse/internal/session"
	"github.com/robalobadob/memorypulse/internal/store"
	"github.com/robalobadob/memorypulse/internal/telemetry"
)

var serveFlags struct {
	port  string
	store string
	db    string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveFlags.port != "" {
			cfg.Port = serveFlags.port
		}
		if serveFlags.store != "" {
			cfg.Store = serveFlags.store
		}
		if serveFlags.db != "" {
			cfg.DBPath = serveFlags.db
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.port, "port", "p", "", "HTTP port (env PORT, default 5175)")
	serveCmd.Flags().StringVar(&serveFlags.store, "store", "", "preference store: sqlite or memory (env STORE)")
	serveCmd.Flags().StringVar(&serveFlags.db, "db", "", "SQLite database path (env DB_PATH)")
}

// loadConfig resolves config, sets up logging and loads the level table.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if levelsFile != "" {
		cfg.LevelsFile = levelsFile
	}
	setupLogging(cfg)

	if cfg.LevelsFile != "" {
		os.Setenv("LEVELS_FILE", cfg.LevelsFile)
	}
	if err := levels.Init(); err != nil {
		return cfg, fmt.Errorf("load levels: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry setup failed; running without traces")
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("telemetry shutdown")
			}
		}()
	}

	var st store.Store
	switch cfg.Store {
	case config.StoreMemory:
		st = store.NewMemoryStore()
	default:
		db, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		st = db
	}
	prefs := store.NewPrefs(st)

	sessions := session.NewManager(session.Options{Prefs: prefs, Tick: cfg.Tick, IdleTTL: cfg.SessionTTL})
	defer sessions.Close()

	srv := httpserver.New(sessions, prefs, httpserver.Config{
		JWTSecret:     cfg.JWTSecret,
		ClientOrigin:  cfg.ClientOrigin,
		SecureCookies: cfg.SecureCookies,
	})
	log.Info().
		Str("port", cfg.Port).
		Str("store", cfg.Store).
		Int("levels", levels.Count()).
		Msg("starting memorypulse")
	return srv.Start(ctx, ":"+cfg.Port)
}
