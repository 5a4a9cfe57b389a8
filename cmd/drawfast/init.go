package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/drawfast/internal/assets"
	"github.com/fpang/drawfast/internal/logging"
)

var forceFlag bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example scene to start from",
	Args:  cobra.MaximumNArgs(1),
	Run:   runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) {
	logging.Init()
	path := "scene.json"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !forceFlag {
		log.Fatal().Str("path", path).Msg("File exists, use --force to overwrite")
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to check path")
	}
	if err := os.WriteFile(path, assets.ExampleScene, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to write example scene")
	}
	log.Info().Str("path", path).Msg("Example scene written")
}
