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

	"github.com/fpang/drawfast/internal/canvas"
	"github.com/fpang/drawfast/internal/inference"
	"github.com/fpang/drawfast/internal/logging"
	"github.com/fpang/drawfast/internal/prompt"
)

var (
	promptFlag    string
	seedFlag      int64
	strengthFlag  float64
	resultOutFlag string
)

var submitCmd = &cobra.Command{
	Use:   "submit <image>",
	Short: "Send one image and prompt to the backend",
	Long: `Submit sends a single image-to-image request, the same request a live region
would send, and writes the result. Inline results are written to --output;
hosted results are printed as a URL.`,
	Args: cobra.ExactArgs(1),
	Run:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Region prompt (empty uses the fallback prompt)")
	submitCmd.Flags().Int64Var(&seedFlag, "seed", -1, "Seed (-1 derives one from the image path)")
	submitCmd.Flags().Float64Var(&strengthFlag, "strength", canvas.DefaultStrength, "Strength in [0, 1]")
	submitCmd.Flags().StringVarP(&resultOutFlag, "output", "o", "result.jpg", "Path for an inline result image")
}

func runSubmit(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := loadConfig(cmd)

	if strengthFlag < 0 || strengthFlag > 1 {
		log.Fatal().Float64("strength", strengthFlag).Msg("Strength must be within [0, 1]")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatal().Err(err).Str("path", args[0]).Msg("Failed to read image")
	}
	seed := seedFlag
	if seed < 0 {
		seed = canvas.DeriveSeed(canvas.ID(args[0]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ch := openChannel(ctx, cfg)
	defer ch.Close()

	req := inference.Request{
		Prompt:   prompt.Compose(promptFlag),
		ImageURL: inference.EncodeDataURI(http.DetectContentType(data), data),
		SyncMode: true,
		Strength: strengthFlag,
		Seed:     seed,
	}
	start := time.Now()
	resp, err := ch.Submit(ctx, req)
	if err != nil {
		var backendErr *inference.BackendError
		switch {
		case errors.As(err, &backendErr):
			log.Fatal().Err(err).Str("type", backendErr.Type.String()).Msg("Backend rejected the request")
		case errors.Is(err, inference.ErrTimeout):
			log.Fatal().Err(err).Dur("timeout", cfg.Timeout).Msg("Request timed out")
		default:
			log.Fatal().Err(err).Msg("Request failed")
		}
	}

	out, ok := resp.First()
	if !ok {
		log.Warn().Str("request_id", resp.RequestID).Msg("Backend returned no image")
		return
	}
	log.Info().
		Str("request_id", resp.RequestID).
		Int64("seed", seed).
		Dur("duration", time.Since(start)).
		Msg("Image generated")

	mimeType, img, err := inference.DecodeDataURI(out.URL)
	if err != nil {
		// Hosted result.
		fmt.Println(out.URL)
		return
	}
	if err := os.WriteFile(resultOutFlag, img, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", resultOutFlag).Msg("Failed to write result")
	}
	fmt.Printf("Wrote %s (%s, %d bytes)\n", resultOutFlag, mimeType, len(img))
}
