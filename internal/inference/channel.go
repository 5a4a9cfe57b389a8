// Package inference talks to the realtime image-generation backend.
//
// A Channel multiplexes many outstanding requests over one long-lived duplex
// connection. Every request carries a fresh request_id and is answered
// independently of arrival order. The connection heals itself after
// transport errors without disturbing pending requests.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds each Submit call.
const DefaultTimeout = 5 * time.Second

// Options configures a Channel.
type Options struct {
	// Timeout is the per-request deadline. Zero means DefaultTimeout.
	Timeout time.Duration
	// SendInterval is the minimum time between two sends. Sends made
	// within one interval are coalesced and only the latest is written.
	// Zero writes every send immediately.
	SendInterval time.Duration
	// NewBackOff returns the reconnect policy. Nil means exponential backoff
	// with no overall limit.
	NewBackOff func() backoff.BackOff
}

type outcome struct {
	resp *Response
	err  error
}

type call struct {
	done  chan outcome
	timer *time.Timer
}

// Channel is a self-healing request/response channel. It is safe for
// concurrent use.
type Channel struct {
	dialer Dialer
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	pending      map[string]*call
	conn         Conn
	reconnecting bool
	closed       bool
	// latest is the payload waiting for the next permitted send.
	latest []byte

	writeMu sync.Mutex
	wake    chan struct{}
	limiter *rate.Limiter
}

// New dials the backend and starts the channel. Only the first dial is
// reported as an error; later transport failures are retried in the
// background.
func New(ctx context.Context, dialer Dialer, opts Options) (*Channel, error) {
	if dialer == nil {
		return nil, fmt.Errorf("inference: dialer is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}

	conn, err := dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		dialer:  dialer,
		opts:    opts,
		ctx:     cctx,
		cancel:  cancel,
		pending: make(map[string]*call),
		conn:    conn,
		wake:    make(chan struct{}, 1),
	}
	c.startReader(conn)

	if opts.SendInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.SendInterval), 1)
		c.wg.Add(1)
		go c.writeLoop()
	}

	log.Info().
		Dur("timeout", opts.Timeout).
		Dur("send_interval", opts.SendInterval).
		Msg("Inference channel connected")
	return c, nil
}

// Submit sends req with a fresh request id and waits for the matching
// response. It fails with ErrTimeout when the deadline passes, with
// ErrConnectionClosed when the channel is shut down, with a *BackendError
// when the backend reports a failure, or with ctx.Err().
func (c *Channel) Submit(ctx context.Context, req Request) (*Response, error) {
	req.RequestID = uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	cl := &call{done: make(chan outcome, 1)}
	id := req.RequestID

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = cl
	cl.timer = time.AfterFunc(c.opts.Timeout, func() {
		if c.finish(id, outcome{err: ErrTimeout}) {
			log.Warn().Str("request_id", id).Dur("timeout", c.opts.Timeout).Msg("Inference request timed out")
		}
	})
	c.mu.Unlock()

	log.Debug().
		Str("request_id", id).
		Int64("seed", req.Seed).
		Float64("strength", req.Strength).
		Int("payload_bytes", len(payload)).
		Msg("Submitting inference request")
	c.send(payload)

	select {
	case out := <-cl.done:
		return out.resp, out.err
	case <-ctx.Done():
		// Whoever completed the call first has filled done.
		c.finish(id, outcome{err: ctx.Err()})
		out := <-cl.done
		return out.resp, out.err
	}
}

// Pending returns the number of requests awaiting a response.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close rejects every pending request with ErrConnectionClosed and closes
// the connection. It is safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*call)
	conn := c.conn
	c.conn = nil
	c.latest = nil
	c.mu.Unlock()

	for _, cl := range pending {
		cl.timer.Stop()
		cl.done <- outcome{err: ErrConnectionClosed}
	}
	log.Info().Int("rejected", len(pending)).Msg("Inference channel closed")

	c.cancel()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

// finish completes the pending call with the given id. It reports whether
// a call was found; each call is completed at most once.
func (c *Channel) finish(id string, out outcome) bool {
	c.mu.Lock()
	cl, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	cl.timer.Stop()
	cl.done <- out
	return true
}

func (c *Channel) send(payload []byte) {
	if c.limiter == nil {
		c.write(payload)
		return
	}
	c.mu.Lock()
	c.latest = payload
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// writeLoop sends the latest payload at most once per SendInterval.
func (c *Channel) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.wake:
		case <-c.ctx.Done():
			return
		}
		if err := c.limiter.Wait(c.ctx); err != nil {
			return
		}
		c.mu.Lock()
		payload := c.latest
		c.latest = nil
		c.mu.Unlock()
		if payload != nil {
			c.write(payload)
		}
	}
}

// write sends payload on the current connection. Without a healthy
// connection the payload is parked until the next reconnect.
func (c *Channel) write(payload []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		if !c.closed {
			c.latest = payload
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := conn.WriteMessage(payload); err != nil {
		c.mu.Lock()
		if !c.closed {
			c.latest = payload
		}
		c.mu.Unlock()
		c.fail(conn, err)
	}
}

func (c *Channel) startReader(conn Conn) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				c.fail(conn, err)
				return
			}
			c.handle(data)
		}
	}()
}

func (c *Channel) handle(data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping malformed frame")
		return
	}
	if f.RequestID == "" {
		log.Debug().Str("type", f.Type).Msg("Ignoring frame without request id")
		return
	}

	var out outcome
	if f.Type == errorFrameType {
		out.err = &BackendError{
			Type:      classifyReason(f.Reason + " " + f.Error),
			RequestID: f.RequestID,
			Message:   f.Error,
			Reason:    f.Reason,
		}
	} else {
		resp := f.Response
		out.resp = &resp
	}
	if !c.finish(f.RequestID, out) {
		log.Debug().Str("request_id", f.RequestID).Msg("Dropping response for unknown request")
	}
}

// fail tears down conn after a transport error and starts reconnecting.
// Pending requests are left alone; their own timers still run.
func (c *Channel) fail(conn Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	start := !c.reconnecting
	c.reconnecting = true
	c.mu.Unlock()

	_ = conn.Close()
	log.Warn().Err(err).Msg("Inference connection lost, reconnecting")
	if start {
		c.wg.Add(1)
		go c.reconnect()
	}
}

func (c *Channel) reconnect() {
	defer c.wg.Done()

	var conn Conn
	attempt := 0
	op := func() error {
		attempt++
		var err error
		conn, err = c.dialer.Dial(c.ctx)
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Reconnect failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.opts.NewBackOff(), c.ctx), notify); err != nil {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
		log.Debug().Err(err).Msg("Reconnect abandoned")
		return
	}

	c.mu.Lock()
	c.reconnecting = false
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	parked := c.latest
	c.mu.Unlock()

	c.startReader(conn)
	log.Info().Int("attempts", attempt).Msg("Inference connection re-established")

	if parked != nil {
		if c.limiter == nil {
			c.mu.Lock()
			c.latest = nil
			c.mu.Unlock()
			c.write(parked)
		} else {
			select {
			case c.wake <- struct{}{}:
			default:
			}
		}
	}
}
