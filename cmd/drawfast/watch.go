package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/drawfast/internal/canvas"
	"github.com/fpang/drawfast/internal/config"
	"github.com/fpang/drawfast/internal/logging"
	"github.com/fpang/drawfast/internal/membership"
	"github.com/fpang/drawfast/internal/raster"
	"github.com/fpang/drawfast/internal/scheduler"
	"github.com/fpang/drawfast/internal/sink"
)

// frameDelay debounces triggers when no throttle is configured.
const frameDelay = 16 * time.Millisecond

// reloadDelay lets an editor finish writing before the scene is re-read.
const reloadDelay = 50 * time.Millisecond

var (
	outFlag      string
	debounceFlag time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <scene>",
	Short: "Keep the live regions of a scene file up to date",
	Long: `Watch loads a scene file (JSON, or zstd-compressed JSON ending in .zst) and
keeps every live region's generated image current. Edits to the scene file are
applied as user changes, so saving the file from any editor re-runs the regions
whose drawing changed.

With --out, the scene including generated assets is written after every
result.`,
	Args: cobra.ExactArgs(1),
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write the scene with generated assets to this path")
	watchCmd.Flags().DurationVar(&debounceFlag, "debounce", frameDelay, "Delay before a cycle starts, used when --throttle is 0")
}

func runWatch(cmd *cobra.Command, args []string) {
	logging.Init()
	start := time.Now()
	scenePath := args[0]
	cfg := loadConfig(cmd)

	snap, err := canvas.LoadSnapshot(scenePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", scenePath).Msg("Failed to load scene")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := openChannel(ctx, cfg)
	defer ch.Close()

	doc := canvas.NewDocument()
	opts := schedulerOptions(cfg)
	mgr, err := scheduler.NewManager(doc, scheduler.Deps{
		Rasterizer: raster.New(cfg.TargetSize),
		Submitter:  ch,
		Sink:       sink.New(doc),
	}, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create region manager")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	if outFlag != "" {
		g.Go(func() error { return saveOnResult(gctx, doc, outFlag) })
	}

	select {
	case <-mgr.Ready():
	case <-gctx.Done():
	}
	// The initial load counts as a user edit so every region runs once.
	if err := applyScene(doc, snap, cfg.DarkMode); err != nil {
		log.Fatal().Err(err).Str("path", scenePath).Msg("Failed to apply scene")
	}
	g.Go(func() error { return watchScene(gctx, scenePath, doc, cfg.DarkMode) })

	describeBackend(logging.NewStartupLogger("watch").Version(version), cfg).
		Pipeline("scene", scenePath).
		Pipeline("throttle", opts.Throttle.String()).
		Pipeline("debounce", opts.Debounce.String()).
		Pipeline("sendInterval", cfg.SendInterval.String()).
		Pipeline("retryPolicy", opts.RetryPolicy.String()).
		Pipeline("membership", opts.Membership.String()).
		Pipeline("targetSize", strconv.Itoa(cfg.TargetSize)).
		Feature("darkMode", doc.IsDarkMode()).
		Feature("metrics", cfg.Metrics).
		Feature("saveAssets", outFlag != "").
		Regions(len(doc.Regions())).
		InitDuration(time.Since(start)).
		Log()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Watch stopped with an error")
	}
	log.Info().Int("pending", ch.Pending()).Msg("Shutting down")
}

func schedulerOptions(cfg config.Config) scheduler.Options {
	// Validate has already accepted both names.
	retry, _ := scheduler.ParseRetryPolicy(cfg.RetryPolicy)
	member, _ := membership.ParsePolicy(cfg.Membership)
	opts := scheduler.Options{
		Throttle:          cfg.Throttle,
		RetryPolicy:       retry,
		MaxTimeoutRetries: cfg.MaxTimeoutRetries,
		Membership:        member,
	}
	if cfg.Throttle == 0 {
		opts.Debounce = debounceFlag
	}
	return opts
}

func applyScene(doc *canvas.Document, snap canvas.Snapshot, dark bool) error {
	snap.DarkMode = snap.DarkMode || dark
	return doc.Replace(canvas.SourceUser, snap)
}

// watchScene re-applies the scene file whenever it changes on disk. The
// directory is watched so editors that save by renaming are seen too.
func watchScene(ctx context.Context, path string, doc *canvas.Document, dark bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	name := filepath.Clean(path)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reload = time.After(reloadDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Scene watcher error")
		case <-reload:
			reload = nil
			snap, err := canvas.LoadSnapshot(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable scene")
				continue
			}
			if err := applyScene(doc, snap, dark); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Ignoring invalid scene")
				continue
			}
			log.Info().Str("path", path).Int("elements", len(snap.Elements)).Msg("Scene reloaded")
		}
	}
}

// saveOnResult writes the document to path after every asset change.
func saveOnResult(ctx context.Context, doc *canvas.Document, path string) error {
	changed := make(chan struct{}, 1)
	unsubscribe := doc.Subscribe(func(ev canvas.ChangeEvent) {
		if len(ev.Assets) == 0 {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := canvas.SaveSnapshot(path, doc.Snapshot()); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to save scene")
				continue
			}
			log.Debug().Str("path", path).Int("assets", len(doc.Assets())).Msg("Scene saved")
		}
	}
}
