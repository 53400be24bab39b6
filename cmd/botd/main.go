// botd is the control & telemetry plane for the paper-trading worker and
// its dashboard. `botd serve` (also the default) runs the HTTP service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/piptrade/botd/internal/config"
	"github.com/piptrade/botd/internal/control"
	"github.com/piptrade/botd/internal/httpapi"
	"github.com/piptrade/botd/internal/ingest"
	"github.com/piptrade/botd/internal/market"
	"github.com/piptrade/botd/internal/ohlc"
	"github.com/piptrade/botd/internal/query"
	"github.com/piptrade/botd/internal/store"
)

const (
	appName = "botd"
	version = "v1.2.0"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Paper-trading bot control & telemetry plane",
		Version: version,
		RunE:    runServe,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		// A corrupt or unreadable store is fatal; never silently truncate.
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("store unusable")
	}
	defer st.Close()

	fsm := control.New(st, nil)
	if err := fsm.Init(cmd.Context()); err != nil {
		log.Fatal().Err(err).Msg("control init failed")
	}

	srv := httpapi.NewServer(cfg, version, httpapi.Deps{
		Store:  st,
		FSM:    fsm,
		Ingest: ingest.New(st, nil),
		Query:  query.New(st, fsm),
		OHLC:   ohlc.NewAggregator(st),
		Market: market.NewClient(cfg),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
	log.Info().Msg("stopped")
	return nil
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := cfg.LogFormat == "console"
	if cfg.LogFormat == "auto" {
		console = term.IsTerminal(int(os.Stderr.Fd()))
	}
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
