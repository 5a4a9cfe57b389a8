package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/drawfast/internal/config"
	"github.com/fpang/drawfast/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Global flags
var (
	configFlag    string
	endpointFlag  string
	transportFlag string
	timeoutFlag   time.Duration
	throttleFlag  time.Duration
	darkFlag      bool
)

var rootCmd = &cobra.Command{
	Use:   "drawfast",
	Short: "Live image generation for canvas regions",
	Long: `Drawfast keeps the live regions of a canvas scene up to date. Whenever the
drawing under a region changes, the region is rasterized and sent to a realtime
image-to-image backend, and the generated image is stored as the region's asset.

Configuration is read from an optional YAML file, then DRAWFAST_* environment
variables, then flags.

Examples:
  drawfast init scene.json
  drawfast watch scene.json --out scene.out.json
  drawfast render scene.json shape:region -o region.png
  drawfast submit sketch.png --prompt "a city skyline" --seed 42
  drawfast watch scene.json.zst --transport gemini`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&endpointFlag, "endpoint", config.DefaultEndpoint, "Realtime backend endpoint (ws:// or wss://)")
	flags.StringVar(&transportFlag, "transport", config.TransportWebSocket, "Inference transport: websocket or gemini")
	flags.DurationVar(&timeoutFlag, "timeout", config.DefaultTimeout, "Per-request inference timeout")
	flags.DurationVar(&throttleFlag, "throttle", 0, "Minimum delay between two cycles of a region")
	flags.BoolVar(&darkFlag, "dark", false, "Rasterize with the dark theme")

	rootCmd.AddCommand(initCmd, watchCmd, renderCmd, submitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file, the environment and any flag the user
// set explicitly. Invalid settings are fatal.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", configFlag).Msg("Failed to load configuration")
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = endpointFlag
	}
	if flags.Changed("transport") {
		cfg.Transport = transportFlag
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeoutFlag
	}
	if flags.Changed("throttle") {
		cfg.Throttle = throttleFlag
	}
	if flags.Changed("dark") {
		cfg.DarkMode = darkFlag
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	metrics.SetEnabled(cfg.Metrics)
	return cfg
}
