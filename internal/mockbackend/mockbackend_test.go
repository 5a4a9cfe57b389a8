package mockbackend

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/drawfast/internal/inference"
)

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return inference.EncodeDataURI("image/png", buf.Bytes())
}

func connect(t *testing.T, srv *Server, timeout time.Duration) *inference.Channel {
	t.Helper()
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/app/realtime"
	ch, err := inference.New(context.Background(), inference.WebSocketDialer{URL: url}, inference.Options{Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestEchoesImage(t *testing.T) {
	srv := New(Options{})
	ch := connect(t, srv, time.Second)

	uri := pngDataURI(t, 64, 32)
	resp, err := ch.Submit(context.Background(), inference.Request{Prompt: "p", ImageURL: uri, Seed: 42, SyncMode: true})
	require.NoError(t, err)

	out, ok := resp.First()
	require.True(t, ok)
	assert.Equal(t, uri, out.URL)
	assert.Equal(t, 64, out.Width)
	assert.Equal(t, 32, out.Height)
	assert.Equal(t, int64(42), resp.Seed)
	assert.Equal(t, 4, resp.NumInferenceSteps)
	assert.EqualValues(t, 1, srv.Served())
}

func TestErrorFrames(t *testing.T) {
	srv := New(Options{ErrorRate: 1})
	ch := connect(t, srv, time.Second)

	_, err := ch.Submit(context.Background(), inference.Request{Prompt: "p", ImageURL: pngDataURI(t, 8, 8)})
	var backendErr *inference.BackendError
	require.True(t, errors.As(err, &backendErr), "got %v", err)
	assert.Equal(t, inference.ErrTypeUpstream, backendErr.Type)
	assert.Equal(t, "simulated failure", backendErr.Message)
}

func TestDroppedRequestsTimeOut(t *testing.T) {
	srv := New(Options{DropRate: 1})
	ch := connect(t, srv, 100*time.Millisecond)

	_, err := ch.Submit(context.Background(), inference.Request{Prompt: "p", ImageURL: pngDataURI(t, 8, 8)})
	require.ErrorIs(t, err, inference.ErrTimeout)
	assert.EqualValues(t, 1, srv.Dropped())
}

func TestDelayedAnswersArrive(t *testing.T) {
	srv := New(Options{Delay: 30 * time.Millisecond})
	ch := connect(t, srv, time.Second)

	start := time.Now()
	_, err := ch.Submit(context.Background(), inference.Request{Prompt: "p", ImageURL: "not a data uri"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
