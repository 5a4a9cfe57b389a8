// Package mockbackend is a local stand-in for the realtime image backend.
// It answers every request with the request's own image, which is enough to
// exercise the whole pipeline without a GPU.
package mockbackend

import (
	"bytes"
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fpang/drawfast/internal/inference"
)

// Options shape the mock's behaviour.
type Options struct {
	// Delay is added before every answer.
	Delay time.Duration
	// DropRate is the probability in [0, 1] that a request is never
	// answered.
	DropRate float64
	// ErrorRate is the probability in [0, 1] that a request is answered
	// with an error frame.
	ErrorRate float64
	// Steps is reported as num_inference_steps.
	Steps int
}

type errorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
}

// Server upgrades HTTP requests to websocket sessions.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	served  atomic.Int64
	dropped atomic.Int64
}

// New returns a mock backend.
func New(opts Options) *Server {
	if opts.Steps <= 0 {
		opts.Steps = 4
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Served returns how many requests were answered.
func (s *Server) Served() int64 { return s.served.Load() }

// Dropped returns how many requests were deliberately left unanswered.
func (s *Server) Dropped() int64 { return s.dropped.Load() }

// ServeHTTP runs one websocket session until the client goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	log.Info().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("Client connected")

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
		done    = make(chan struct{})
	)
	defer func() {
		close(done)
		wg.Wait()
		log.Info().Str("remote", r.RemoteAddr).Msg("Client disconnected")
	}()

	write := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode frame")
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("Failed to write frame")
		}
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req inference.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed request")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.opts.Delay > 0 {
				select {
				case <-time.After(s.opts.Delay):
				case <-done:
					return
				}
			}
			if v, ok := s.answer(req); ok {
				write(v)
			}
		}()
	}
}

// answer builds the reply to req. It returns false when the request is
// dropped.
func (s *Server) answer(req inference.Request) (any, bool) {
	logger := log.With().Str("request_id", req.RequestID).Logger()
	switch roll := rand.Float64(); {
	case roll < s.opts.DropRate:
		s.dropped.Add(1)
		logger.Debug().Msg("Dropping request")
		return nil, false
	case roll < s.opts.DropRate+s.opts.ErrorRate:
		logger.Debug().Msg("Failing request")
		return errorFrame{
			Type:      "x-fal-error",
			RequestID: req.RequestID,
			Error:     "simulated failure",
			Reason:    "service unavailable",
		}, true
	}

	out := inference.Image{URL: req.ImageURL}
	if _, data, err := inference.DecodeDataURI(req.ImageURL); err == nil {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			out.Width, out.Height = cfg.Width, cfg.Height
		}
	}
	s.served.Add(1)
	logger.Debug().Int("width", out.Width).Int("height", out.Height).Msg("Echoing image")
	return inference.Response{
		RequestID:         req.RequestID,
		Images:            []inference.Image{out},
		Seed:              req.Seed,
		NumInferenceSteps: s.opts.Steps,
	}, true
}
