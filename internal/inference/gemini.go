package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/drawfast/internal/assets"
	"github.com/fpang/drawfast/internal/raster"
)

// DefaultGeminiModel is the image model used by NewGeminiGenerator.
const DefaultGeminiModel = "gemini-2.5-flash-image"

// ImageGenerator edits an input image according to a prompt.
type ImageGenerator interface {
	EditImage(ctx context.Context, img []byte, mimeType, prompt string, seed int32) ([]byte, string, error)
}

// GeminiGenerator calls a Gemini image model through the genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client for image editing.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// EditImage sends img and prompt to the model and returns the first image
// part of the answer.
func (g *GeminiGenerator) EditImage(ctx context.Context, img []byte, mimeType, prompt string, seed int32) ([]byte, string, error) {
	start := time.Now()
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: img}},
			{Text: prompt},
		},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		Seed:               &seed,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", fmt.Errorf("gemini returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			log.Debug().
				Str("model", g.model).
				Int("output_bytes", len(part.InlineData.Data)).
				Dur("duration", time.Since(start)).
				Msg("Gemini image edit complete")
			return part.InlineData.Data, part.InlineData.MIMEType, nil
		}
	}
	return nil, "", fmt.Errorf("gemini returned no image")
}

// GeminiDialer serves the realtime protocol locally: every request frame
// becomes an ImageGenerator call and its result is sent back as a response
// frame, in completion order.
type GeminiDialer struct {
	Generator ImageGenerator
}

// Dial returns a new in-process connection.
func (d GeminiDialer) Dial(ctx context.Context) (Conn, error) {
	if d.Generator == nil {
		return nil, fmt.Errorf("gemini: generator is required")
	}
	cctx, cancel := context.WithCancel(context.Background())
	return &geminiConn{
		gen:    d.Generator,
		ctx:    cctx,
		cancel: cancel,
		out:    make(chan []byte, 16),
	}, nil
}

type geminiConn struct {
	gen    ImageGenerator
	ctx    context.Context
	cancel context.CancelFunc
	out    chan []byte
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func (c *geminiConn) WriteMessage(data []byte) error {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("gemini: bad request frame: %w", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		frame := c.serve(req)
		select {
		case c.out <- frame:
		case <-c.ctx.Done():
		}
	}()
	return nil
}

func (c *geminiConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.out:
		return data, nil
	case <-c.ctx.Done():
		return nil, ErrConnectionClosed
	}
}

func (c *geminiConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// serve runs one request and returns the frame to send back.
func (c *geminiConn) serve(req Request) []byte {
	mimeType, input, err := DecodeDataURI(req.ImageURL)
	if err != nil {
		return encodeErrorFrame(req.RequestID, err.Error(), "invalid image_url")
	}
	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return encodeErrorFrame(req.RequestID, err.Error(), "invalid image")
	}

	out, _, err := c.gen.EditImage(c.ctx, input, mimeType, geminiInstruction(req), int32(req.Seed))
	if err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("Gemini request failed")
		return encodeErrorFrame(req.RequestID, err.Error(), geminiReason(err))
	}

	result, err := normalize(out, src.Bounds().Dx(), src.Bounds().Dy())
	if err != nil {
		return encodeErrorFrame(req.RequestID, err.Error(), "invalid model output")
	}
	data, _ := json.Marshal(Response{
		RequestID: req.RequestID,
		Images: []Image{{
			URL:    EncodeDataURI("image/jpeg", result),
			Width:  src.Bounds().Dx(),
			Height: src.Bounds().Dy(),
		}},
		Seed: req.Seed,
	})
	return data
}

// normalize decodes model output and re-encodes it as a JPEG of the input
// size.
func normalize(data []byte, w, h int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode model output: %w", err)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		img = raster.Resize(img, w, h)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// geminiInstruction turns a realtime request into an editing instruction.
// Strength has no direct Gemini equivalent and is expressed in words.
func geminiInstruction(req Request) string {
	return assets.RenderGeminiEditPrompt(assets.EditPromptData{
		Prompt:   req.Prompt,
		Faithful: req.Strength < 0.5,
	})
}

func geminiReason(err error) string {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 400:
			return "invalid request"
		case apiErr.Code == 429:
			return "quota exceeded"
		case apiErr.Code >= 500:
			return "upstream unavailable"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream timeout"
	}
	return ""
}
