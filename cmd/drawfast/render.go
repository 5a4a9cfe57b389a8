package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/drawfast/internal/canvas"
	"github.com/fpang/drawfast/internal/logging"
	"github.com/fpang/drawfast/internal/membership"
	"github.com/fpang/drawfast/internal/raster"
)

var (
	renderOutFlag  string
	thumbnailFlag  int
	listRegionFlag bool
)

var renderCmd = &cobra.Command{
	Use:   "render <scene> [region-id]",
	Short: "Rasterize the drawing under a live region to a PNG file",
	Long: `Render writes the image that would be sent to the backend for one live
region, without contacting the backend. Use --list to print the regions of a
scene.`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutFlag, "output", "o", "region.png", "Output PNG path")
	renderCmd.Flags().IntVar(&thumbnailFlag, "thumbnail", 0, "Scale the output to fit this many pixels (0 = full size)")
	renderCmd.Flags().BoolVar(&listRegionFlag, "list", false, "List the live regions of the scene and exit")
}

func runRender(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := loadConfig(cmd)

	doc, err := canvas.LoadDocument(args[0])
	if err != nil {
		log.Fatal().Err(err).Str("path", args[0]).Msg("Failed to load scene")
	}
	if cfg.DarkMode {
		doc.SetDarkMode(true)
	}

	if listRegionFlag || len(args) < 2 {
		for _, r := range doc.Regions() {
			b := r.PageBounds()
			fmt.Printf("%s\t%.0fx%.0f at (%.0f, %.0f)\t%q\n", r.ID(), b.W, b.H, b.X, b.Y, r.Prompt())
		}
		return
	}

	id := canvas.ID(args[1])
	if !strings.HasPrefix(args[1], "shape:") {
		id = canvas.ID("shape:" + args[1])
	}
	region, ok := doc.Region(id)
	if !ok {
		log.Fatal().Str("region", string(id)).Msg("No such live region")
	}

	policy, _ := membership.ParsePolicy(cfg.Membership)
	elements := membership.Select(doc, id, policy)
	img, err := raster.New(cfg.TargetSize).Rasterize(context.Background(), elements, region.PageBounds(), doc.IsDarkMode())
	if err != nil {
		log.Fatal().Err(err).Str("region", string(id)).Msg("Failed to rasterize region")
	}
	if img == nil {
		log.Warn().Str("region", string(id)).Int("elements", len(elements)).Msg("Nothing to draw")
		return
	}

	data := img.Data
	if thumbnailFlag > 0 {
		data, err = thumbnail(data, thumbnailFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to scale image")
		}
	}
	if err := os.WriteFile(renderOutFlag, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", renderOutFlag).Msg("Failed to write image")
	}
	log.Info().
		Str("region", string(id)).
		Int("elements", len(elements)).
		Int("bytes", len(data)).
		Str("path", renderOutFlag).
		Msg("Region rendered")
}

func thumbnail(data []byte, size int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, raster.Fit(src, size, size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
