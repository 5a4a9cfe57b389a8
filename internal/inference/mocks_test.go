package inference

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errConnBroken = errors.New("connection broken")

// fakeConn is an in-memory Conn. Frames pushed with deliver are returned by
// ReadMessage; written frames are collected.
type fakeConn struct {
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	written [][]byte
	failW   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failW {
		return errConnBroken
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.closed:
		return nil, errConnBroken
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(v any) {
	data, _ := json.Marshal(v)
	c.incoming <- data
}

// breakConn simulates a transport failure seen by the reader.
func (c *fakeConn) breakConn() { c.Close() }

func (c *fakeConn) requests(t *testing.T) []Request {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, 0, len(c.written))
	for _, data := range c.written {
		var r Request
		require.NoError(t, json.Unmarshal(data, &r))
		out = append(out, r)
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

// fakeDialer hands out the queued connections in order and fails when the
// queue is empty.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errConnBroken
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) add(c *fakeConn) {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// submitAsync runs Submit in a goroutine and returns a channel with its result.
func submitAsync(ctx context.Context, ch *Channel, req Request) <-chan outcome {
	done := make(chan outcome, 1)
	go func() {
		resp, err := ch.Submit(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()
	return done
}

func waitOutcome(t *testing.T, done <-chan outcome) outcome {
	t.Helper()
	select {
	case out := <-done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return")
		return outcome{}
	}
}
