package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/drawfast/internal/logging"
	"github.com/fpang/drawfast/internal/mockbackend"
)

var version = "dev"

// CLI flags
var (
	addrFlag      string
	delayFlag     time.Duration
	dropRateFlag  float64
	errorRateFlag float64
)

var rootCmd = &cobra.Command{
	Use:   "drawfast-mock",
	Short: "Local realtime backend that echoes the submitted image",
	Long: `Drawfast-mock serves the realtime websocket protocol on every path and answers
each request with the request's own image. Delays, dropped requests and error
frames can be injected to try out timeouts and retries.

Examples:
  drawfast-mock
  drawfast-mock --addr :9000 --delay 300ms
  drawfast-mock --drop-rate 0.2 --error-rate 0.1

Point drawfast at it with:
  drawfast watch scene.json --endpoint ws://localhost:8765`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&addrFlag, "addr", ":8765", "Address to listen on")
	rootCmd.Flags().DurationVar(&delayFlag, "delay", 0, "Delay before every answer")
	rootCmd.Flags().Float64Var(&dropRateFlag, "drop-rate", 0, "Probability that a request is never answered")
	rootCmd.Flags().Float64Var(&errorRateFlag, "error-rate", 0, "Probability that a request gets an error frame")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	start := time.Now()

	if dropRateFlag < 0 || errorRateFlag < 0 || dropRateFlag+errorRateFlag > 1 {
		log.Fatal().
			Float64("drop_rate", dropRateFlag).
			Float64("error_rate", errorRateFlag).
			Msg("Rates must be non-negative and sum to at most 1")
	}

	backend := mockbackend.New(mockbackend.Options{
		Delay:     delayFlag,
		DropRate:  dropRateFlag,
		ErrorRate: errorRateFlag,
	})
	srv := &http.Server{
		Addr:              addrFlag,
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logging.NewStartupLogger("drawfast-mock").
		Version(version).
		Backend("addr", addrFlag).
		Pipeline("delay", delayFlag.String()).
		Pipeline("dropRate", fmt.Sprintf("%.2f", dropRateFlag)).
		Pipeline("errorRate", fmt.Sprintf("%.2f", errorRateFlag)).
		InitDuration(time.Since(start)).
		Log()

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().
		Int64("served", backend.Served()).
		Int64("dropped", backend.Dropped()).
		Msg("Server stopped")
}
