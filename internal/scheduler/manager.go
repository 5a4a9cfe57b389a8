package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/drawfast/internal/canvas"
)

// Document is the canvas surface the Manager watches.
type Document interface {
	Canvas
	Subscribe(fn canvas.Listener) (unsubscribe func())
	Regions() []canvas.LiveRegion
}

type managed struct {
	sched  *Scheduler
	cancel context.CancelFunc
}

// Manager keeps one Scheduler per live region of a document. Regions added
// later get a scheduler of their own; deleted regions have theirs stopped.
// User-sourced element changes trigger every scheduler.
type Manager struct {
	doc  Document
	deps Deps
	opts Options

	ready chan struct{}

	mu         sync.Mutex
	group      *errgroup.Group
	ctx        context.Context
	schedulers map[canvas.ID]managed
}

// NewManager wires the pipeline collaborators for every region of doc.
// deps.Canvas is ignored; doc is used instead.
func NewManager(doc Document, deps Deps, opts Options) (*Manager, error) {
	deps.Canvas = doc
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Manager{
		doc:        doc,
		deps:       deps,
		opts:       opts,
		ready:      make(chan struct{}),
		schedulers: make(map[canvas.ID]managed),
	}, nil
}

// Run starts the schedulers and blocks until ctx is done and every
// scheduler has stopped.
func (m *Manager) Run(ctx context.Context) error {
	// Subscribe first so no region added during startup is missed; add is
	// idempotent.
	unsubscribe := m.doc.Subscribe(m.onChange)

	g, gctx := errgroup.WithContext(ctx)
	m.mu.Lock()
	m.group, m.ctx = g, gctx
	for _, r := range m.doc.Regions() {
		m.addLocked(r.ID())
	}
	count := len(m.schedulers)
	m.mu.Unlock()
	close(m.ready)
	log.Info().Int("regions", count).Msg("Live region manager started")

	<-gctx.Done()
	unsubscribe()

	m.mu.Lock()
	for id, e := range m.schedulers {
		e.cancel()
		delete(m.schedulers, id)
	}
	m.mu.Unlock()

	err := g.Wait()
	log.Info().Msg("Live region manager stopped")
	return err
}

// Ready is closed once Run is watching the document. Changes made after
// that are guaranteed to reach the schedulers.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Scheduler returns the scheduler of a region, if one is running.
func (m *Manager) Scheduler(id canvas.ID) (*Scheduler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.schedulers[id]
	return e.sched, ok
}

// Len returns the number of running schedulers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedulers)
}

func (m *Manager) onChange(ev canvas.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group == nil || m.ctx.Err() != nil {
		return
	}

	for id, el := range ev.Added {
		if el.Kind == canvas.KindLiveImage {
			m.addLocked(id)
		}
	}
	for id := range ev.Removed {
		if e, ok := m.schedulers[id]; ok {
			e.cancel()
			delete(m.schedulers, id)
			log.Debug().Str("region", string(id)).Msg("Region removed, scheduler stopped")
		}
	}

	if ev.Source != canvas.SourceUser || !ev.HasElementChanges() {
		return
	}
	for _, e := range m.schedulers {
		e.sched.Trigger()
	}
}

func (m *Manager) addLocked(id canvas.ID) {
	if _, ok := m.schedulers[id]; ok {
		return
	}
	s, err := New(id, m.deps, m.opts)
	if err != nil {
		log.Error().Err(err).Str("region", string(id)).Msg("Failed to create region scheduler")
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.schedulers[id] = managed{sched: s, cancel: cancel}
	m.group.Go(func() error {
		defer cancel()
		return s.Run(ctx)
	})
	log.Debug().Str("region", string(id)).Msg("Region scheduler added")
}
