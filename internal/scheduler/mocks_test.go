package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fpang/drawfast/internal/canvas"
	"github.com/fpang/drawfast/internal/inference"
	"github.com/fpang/drawfast/internal/raster"
	"github.com/fpang/drawfast/internal/sink"
)

// fakeRasterizer encodes the elements it is given as JSON so that any
// change in content changes the image. Closing gate releases blocked calls.
type fakeRasterizer struct {
	gate chan struct{}
	err  error

	calls       atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32

	mu    sync.Mutex
	times []time.Time
}

func (r *fakeRasterizer) Rasterize(ctx context.Context, elements []canvas.Element, bounds canvas.Box, _ bool) (*raster.Image, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.times = append(r.times, time.Now())
	r.mu.Unlock()

	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		m := r.maxInflight.Load()
		if n <= m || r.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(elements) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(elements)
	if err != nil {
		return nil, err
	}
	return &raster.Image{Data: data, Width: int(bounds.W), Height: int(bounds.H), MimeType: "image/png"}, nil
}

func (r *fakeRasterizer) startTimes() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.times...)
}

// fakeSubmitter records requests. Without a respond hook it answers with a
// single image whose URL is "X".
type fakeSubmitter struct {
	respond func(ctx context.Context, n int, req inference.Request) (*inference.Response, error)

	mu       sync.Mutex
	requests []inference.Request
}

func (f *fakeSubmitter) Submit(ctx context.Context, req inference.Request) (*inference.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(ctx, n, req)
	}
	return imageResponse("X"), nil
}

func (f *fakeSubmitter) Requests() []inference.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inference.Request(nil), f.requests...)
}

func (f *fakeSubmitter) count() int {
	return len(f.Requests())
}

func imageResponse(url string) *inference.Response {
	return &inference.Response{
		RequestID: fmt.Sprintf("req-%s", url),
		Images:    []inference.Image{{URL: url, Width: 512, Height: 512}},
	}
}

type fixture struct {
	doc    *canvas.Document
	region canvas.ID
	raster *fakeRasterizer
	submit *fakeSubmitter
}

// newFixture creates a document holding one live region named prompt.
func newFixture(t *testing.T, prompt string) *fixture {
	t.Helper()
	doc := canvas.NewDocument()
	el := canvas.NewLiveRegion(0, 0, prompt)
	_, err := doc.Create(canvas.SourceUser, el)
	require.NoError(t, err)
	return &fixture{
		doc:    doc,
		region: el.ID,
		raster: &fakeRasterizer{},
		submit: &fakeSubmitter{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Canvas:     f.doc,
		Rasterizer: f.raster,
		Submitter:  f.submit,
		Sink:       sink.New(f.doc),
	}
}

func (f *fixture) addRect(t *testing.T, x, y float64) canvas.ID {
	t.Helper()
	ids, err := f.doc.Create(canvas.SourceUser, canvas.Element{Kind: canvas.KindRect, X: x, Y: y, W: 50, H: 50})
	require.NoError(t, err)
	return ids[0]
}

func (f *fixture) moveTo(t *testing.T, id canvas.ID, x, y float64) {
	t.Helper()
	require.NoError(t, f.doc.UpdateElement(canvas.SourceUser, id, func(el *canvas.Element) {
		el.X, el.Y = x, y
	}))
}

func (f *fixture) src(t *testing.T) (string, bool) {
	t.Helper()
	a, ok := f.doc.Asset(canvas.AssetIDForRegion(f.region))
	return a.Src, ok
}

// start runs a scheduler until the test ends. The returned cancel stops it
// and waits for Run to return.
func (f *fixture) start(t *testing.T, opts Options) (*Scheduler, func()) {
	t.Helper()
	s, err := New(f.region, f.deps(), opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("scheduler did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return s, stop
}

// waitIdle waits until exactly n cycles have started and finished.
func waitIdle(t *testing.T, s *Scheduler, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == Idle && s.Started() == n && s.Finished() == n
	}, 2*time.Second, 5*time.Millisecond, "started=%d finished=%d state=%s", s.Started(), s.Finished(), s.State())
}
