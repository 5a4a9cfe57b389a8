// Package scheduler runs the live-update pipeline of each live region.
//
// Every region has one Scheduler. Its event loop owns the cycle state and
// serializes triggers and completions; the cycle itself (gather, hash,
// rasterize, submit, write) runs on a worker goroutine. At most one cycle is
// in flight per region, and triggers that arrive meanwhile collapse into a
// single follow-up cycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/drawfast/internal/canvas"
	"github.com/fpang/drawfast/internal/fingerprint"
	"github.com/fpang/drawfast/internal/inference"
	"github.com/fpang/drawfast/internal/membership"
	"github.com/fpang/drawfast/internal/metrics"
	"github.com/fpang/drawfast/internal/prompt"
	"github.com/fpang/drawfast/internal/raster"
)

// DefaultMaxTimeoutRetries bounds consecutive timeout retries.
const DefaultMaxTimeoutRetries = 3

// ErrStale marks work superseded by a newer cycle. It is never surfaced.
var ErrStale = errors.New("scheduler: stale result")

// Canvas is the read side of the canvas the scheduler needs.
type Canvas interface {
	membership.Query
	Region(id canvas.ID) (canvas.LiveRegion, bool)
	IsDarkMode() bool
}

// Rasterizer turns elements into an image. A nil image means there is
// nothing to draw.
type Rasterizer interface {
	Rasterize(ctx context.Context, elements []canvas.Element, bounds canvas.Box, darkMode bool) (*raster.Image, error)
}

// Submitter sends one inference request and waits for its response.
type Submitter interface {
	Submit(ctx context.Context, req inference.Request) (*inference.Response, error)
}

// ResultWriter stores a region's latest image URL. An empty URL means no
// image.
type ResultWriter interface {
	WriteResult(regionID canvas.ID, url string) error
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Canvas     Canvas
	Rasterizer Rasterizer
	Submitter  Submitter
	Sink       ResultWriter
}

func (d Deps) validate() error {
	switch {
	case d.Canvas == nil:
		return errors.New("scheduler: canvas is required")
	case d.Rasterizer == nil:
		return errors.New("scheduler: rasterizer is required")
	case d.Submitter == nil:
		return errors.New("scheduler: submitter is required")
	case d.Sink == nil:
		return errors.New("scheduler: sink is required")
	}
	return nil
}

// Options tune a Scheduler.
type Options struct {
	// Throttle is the minimum delay between the starts of two cycles.
	Throttle time.Duration
	// Debounce delays the start of every cycle so that a burst of
	// triggers is handled by one cycle.
	Debounce          time.Duration
	RetryPolicy       RetryPolicy
	MaxTimeoutRetries int
	Membership        membership.Policy
}

type cycleResult struct {
	number   uint64
	outcome  string
	timedOut bool
}

// lastSubmit remembers what the last successful cycle sent.
type lastSubmit struct {
	valid   bool
	content fingerprint.Fingerprint
	prompt  string
	image   fingerprint.Fingerprint
}

// Scheduler drives the update cycles of one live region.
type Scheduler struct {
	regionID canvas.ID
	deps     Deps
	opts     Options

	triggers chan struct{}
	results  chan cycleResult

	// Owned by the event loop.
	state     State
	running   bool
	timer     *time.Timer
	startC    <-chan time.Time
	lastStart time.Time
	retries   int

	// Owned by the cycle goroutine; cycles never overlap.
	last lastSubmit

	started   atomic.Uint64
	finished  atomic.Uint64
	stateView atomic.Int32
}

// New creates the scheduler of one region. Call Run to start it.
func New(regionID canvas.ID, deps Deps, opts Options) (*Scheduler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if regionID == "" {
		return nil, fmt.Errorf("scheduler: region id is required")
	}
	if opts.MaxTimeoutRetries <= 0 {
		opts.MaxTimeoutRetries = DefaultMaxTimeoutRetries
	}
	return &Scheduler{
		regionID: regionID,
		deps:     deps,
		opts:     opts,
		triggers: make(chan struct{}, 1),
		results:  make(chan cycleResult, 1),
	}, nil
}

// RegionID returns the region this scheduler drives.
func (s *Scheduler) RegionID() canvas.ID { return s.regionID }

// State returns the current cycle state.
func (s *Scheduler) State() State { return State(s.stateView.Load()) }

// Started returns the number of cycles started so far.
func (s *Scheduler) Started() uint64 { return s.started.Load() }

// Finished returns the number of the latest finished cycle.
func (s *Scheduler) Finished() uint64 { return s.finished.Load() }

// Trigger reports a user change. It never blocks. A trigger that finds
// another one still queued is dropped: the queued one has not been handled
// yet, so the cycle it starts will see this change too.
func (s *Scheduler) Trigger() {
	select {
	case s.triggers <- struct{}{}:
	default:
	}
}

// Run processes triggers until ctx is done. It waits for the cycle in
// flight, so no result is written after Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := log.With().Str("region", string(s.regionID)).Logger()
	logger.Debug().Msg("Region scheduler started")
	defer func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		logger.Debug().Uint64("cycles", s.started.Load()).Msg("Region scheduler stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			if s.running {
				<-s.results
			}
			return nil
		case <-s.triggers:
			s.onTrigger(ctx)
		case <-s.startC:
			s.beginCycle(ctx)
		case res := <-s.results:
			s.onComplete(ctx, res)
		}
	}
}

func (s *Scheduler) setState(st State) {
	s.state = st
	s.stateView.Store(int32(st))
}

func (s *Scheduler) onTrigger(ctx context.Context) {
	switch s.state {
	case Idle:
		s.setState(Running)
		s.scheduleCycle(ctx)
	case Running:
		if s.startC != nil {
			// The pending cycle has not gathered yet and will see this change.
			return
		}
		s.setState(RunningStale)
	case RunningStale:
	}
}

// scheduleCycle starts a cycle now or after the debounce and throttle
// delays.
func (s *Scheduler) scheduleCycle(ctx context.Context) {
	delay := s.opts.Debounce
	if throttle := s.throttle(); throttle > 0 && !s.lastStart.IsZero() {
		if d := time.Until(s.lastStart.Add(throttle)); d > delay {
			delay = d
		}
	}
	if delay <= 0 {
		s.beginCycle(ctx)
		return
	}
	s.timer = time.NewTimer(delay)
	s.startC = s.timer.C
}

// throttle is the larger of the configured throttle and the region's own
// throttleMs parameter.
func (s *Scheduler) throttle() time.Duration {
	t := s.opts.Throttle
	if region, ok := s.deps.Canvas.Region(s.regionID); ok {
		if own := time.Duration(region.Params().ThrottleMs) * time.Millisecond; own > t {
			t = own
		}
	}
	return t
}

func (s *Scheduler) beginCycle(ctx context.Context) {
	s.timer, s.startC = nil, nil
	s.lastStart = time.Now()
	s.running = true
	n := s.started.Add(1)
	go func() {
		s.results <- s.runCycle(ctx, n)
	}()
}

func (s *Scheduler) onComplete(ctx context.Context, res cycleResult) {
	s.running = false
	s.finished.Store(res.number)

	retry := false
	if res.timedOut {
		retry = s.shouldRetry(res.number)
	} else {
		s.retries = 0
	}

	switch {
	case s.state == RunningStale:
		s.setState(Running)
		s.scheduleCycle(ctx)
	case retry:
		s.retries++
		log.Info().
			Str("region", string(s.regionID)).
			Uint64("cycle", res.number).
			Int("retry", s.retries).
			Msg("Retrying timed out cycle")
		s.scheduleCycle(ctx)
	default:
		s.setState(Idle)
	}
}

func (s *Scheduler) shouldRetry(number uint64) bool {
	if s.opts.RetryPolicy == RetryNever {
		return false
	}
	if s.retries >= s.opts.MaxTimeoutRetries {
		log.Warn().
			Str("region", string(s.regionID)).
			Int("retries", s.retries).
			Msg("Giving up after repeated timeouts")
		return false
	}
	if s.opts.RetryPolicy == RetryIfCurrent {
		return number == s.started.Load()
	}
	return true
}

// stale reports whether cycle n has been overtaken or the scheduler is
// shutting down.
func (s *Scheduler) stale(ctx context.Context, n uint64) bool {
	return ctx.Err() != nil || n <= s.finished.Load()
}

func (s *Scheduler) runCycle(ctx context.Context, n uint64) cycleResult {
	start := time.Now()
	m := metrics.Cycle{Region: string(s.regionID), Number: n}
	logger := log.With().Str("region", string(s.regionID)).Uint64("cycle", n).Logger()

	res := cycleResult{number: n}
	finish := func(outcome string) cycleResult {
		res.outcome = outcome
		m.Outcome = outcome
		m.Total = time.Since(start)
		metrics.RecordCycle(m)
		logger.Debug().Str("outcome", outcome).Dur("duration", m.Total).Msg("Cycle finished")
		return res
	}

	region, ok := s.deps.Canvas.Region(s.regionID)
	if !ok {
		return finish(metrics.OutcomeGone)
	}
	elements := membership.Select(s.deps.Canvas, s.regionID, s.opts.Membership)
	bounds := region.PageBounds()
	params := region.Params()
	name := region.Prompt()

	content := fingerprint.NewBuilder().
		Elements(elements).
		Value(bounds).
		Value(params).
		Sum()
	if s.last.valid && s.last.content == content && s.last.prompt == name {
		return finish(metrics.OutcomeUnchanged)
	}

	rasterStart := time.Now()
	img, err := s.deps.Rasterizer.Rasterize(ctx, elements, bounds, s.deps.Canvas.IsDarkMode())
	m.Raster = time.Since(rasterStart)
	if s.stale(ctx, n) {
		logger.Debug().Err(ErrStale).Msg("Dropping rasterized image")
		return finish(metrics.OutcomeStale)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Rasterization failed")
		s.write(logger, "")
		return finish(metrics.OutcomeEmpty)
	}
	if img == nil {
		logger.Debug().Int("elements", len(elements)).Msg("Nothing to draw")
		if s.write(logger, "") {
			s.last = lastSubmit{valid: true, content: content, prompt: name}
		}
		return finish(metrics.OutcomeEmpty)
	}
	m.ImageBytes = len(img.Data)

	uri := img.DataURI()
	image := fingerprint.NewBuilder().String(uri).Value(params).Sum()
	if s.last.valid && s.last.image == image && s.last.prompt == name {
		s.last.content = content
		logger.Debug().Msg("Same image, skipping submit")
		return finish(metrics.OutcomeUnchanged)
	}

	req := inference.Request{
		Prompt:             prompt.Compose(name),
		ImageURL:           uri,
		SyncMode:           true,
		Strength:           params.Strength,
		Seed:               params.Seed,
		EnableSafetyChecks: false,
	}
	submitStart := time.Now()
	resp, err := s.deps.Submitter.Submit(ctx, req)
	m.Inference = time.Since(submitStart)
	if err != nil {
		if errors.Is(err, inference.ErrTimeout) {
			res.timedOut = true
			logger.Warn().Err(err).Dur("duration", m.Inference).Msg("Inference timed out")
			return finish(metrics.OutcomeTimeout)
		}
		if ctx.Err() != nil {
			return finish(metrics.OutcomeStale)
		}
		logger.Error().Err(err).Msg("Inference failed")
		return finish(metrics.OutcomeError)
	}
	if s.stale(ctx, n) {
		logger.Debug().Err(ErrStale).Msg("Dropping inference result")
		return finish(metrics.OutcomeStale)
	}

	out, ok := resp.First()
	if !ok {
		logger.Warn().Str("request_id", resp.RequestID).Msg("Inference returned no image")
		return finish(metrics.OutcomeNoResult)
	}
	if !s.write(logger, out.URL) {
		return finish(metrics.OutcomeError)
	}
	s.last = lastSubmit{valid: true, content: content, prompt: name, image: image}
	logger.Info().
		Str("request_id", resp.RequestID).
		Dur("inference", m.Inference).
		Msg("Region image updated")
	return finish(metrics.OutcomeWritten)
}

func (s *Scheduler) write(logger zerolog.Logger, url string) bool {
	if err := s.deps.Sink.WriteResult(s.regionID, url); err != nil {
		logger.Warn().Err(err).Msg("Failed to write result")
		return false
	}
	return true
}
