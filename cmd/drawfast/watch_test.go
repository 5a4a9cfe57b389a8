package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/drawfast/internal/canvas"
	"github.com/fpang/drawfast/internal/config"
	"github.com/fpang/drawfast/internal/membership"
	"github.com/fpang/drawfast/internal/scheduler"
	"github.com/fpang/drawfast/internal/sink"
)

func TestSchedulerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.RetryPolicy = "never"
	cfg.Membership = "descendants"

	opts := schedulerOptions(cfg)
	assert.Equal(t, scheduler.RetryNever, opts.RetryPolicy)
	assert.Equal(t, membership.Descendants, opts.Membership)
	assert.Equal(t, frameDelay, opts.Debounce, "no throttle means one frame of debounce")

	cfg.Throttle = 200 * time.Millisecond
	opts = schedulerOptions(cfg)
	assert.Equal(t, 200*time.Millisecond, opts.Throttle)
	assert.Zero(t, opts.Debounce)
}

func TestWatchSceneAppliesEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	region := canvas.NewLiveRegion(0, 0, "a city skyline")
	require.NoError(t, canvas.SaveSnapshot(path, canvas.Snapshot{Version: 1, Elements: []canvas.Element{region}}))

	doc := canvas.NewDocument()
	snap, err := canvas.LoadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, applyScene(doc, snap, false))

	var sources []canvas.Source
	events := make(chan canvas.Source, 8)
	doc.Subscribe(func(ev canvas.ChangeEvent) { events <- ev.Source })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchScene(ctx, path, doc, true) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	rect := canvas.Element{ID: "shape:rect", Kind: canvas.KindRect, X: 10, Y: 10, W: 20, H: 20}
	// The watcher may not be registered yet; keep saving until it notices.
	require.Eventually(t, func() bool {
		if err := canvas.SaveSnapshot(path, canvas.Snapshot{Version: 1, Elements: []canvas.Element{region, rect}}); err != nil {
			return false
		}
		select {
		case src := <-events:
			sources = append(sources, src)
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, canvas.SourceUser, sources[0])
	_, ok := doc.Element("shape:rect")
	assert.True(t, ok)
	assert.True(t, doc.IsDarkMode(), "the dark flag is kept across reloads")
}

func TestSaveOnResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json.zst")
	doc := canvas.NewDocument()
	region := canvas.NewLiveRegion(0, 0, "a city skyline")
	_, err := doc.Create(canvas.SourceUser, region)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- saveOnResult(ctx, doc, path) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// saveOnResult subscribes asynchronously; repeat the write until a
	// save is observed.
	require.Eventually(t, func() bool {
		if err := sink.New(doc).WriteResult(region.ID, "X"+time.Now().String()); err != nil {
			return false
		}
		snap, err := canvas.LoadSnapshot(path)
		return err == nil && len(snap.Assets) == 1
	}, 3*time.Second, 50*time.Millisecond)
}
