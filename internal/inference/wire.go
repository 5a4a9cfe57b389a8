package inference

import (
	"encoding/json"
	"fmt"
)

// errorFrameType tags error frames sent by the realtime backend.
const errorFrameType = "x-fal-error"

// Request is one image-to-image generation request.
type Request struct {
	RequestID          string  `json:"request_id"`
	Prompt             string  `json:"prompt"`
	ImageURL           string  `json:"image_url"`
	SyncMode           bool    `json:"sync_mode"`
	Strength           float64 `json:"strength"`
	Seed               int64   `json:"seed"`
	EnableSafetyChecks bool    `json:"enable_safety_checks"`
}

// Image is one generated image reference.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Response is the backend's answer to a Request.
type Response struct {
	RequestID         string  `json:"request_id"`
	Images            []Image `json:"images"`
	Seed              int64   `json:"seed,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
}

// First returns the first image, if any. A response without images is
// "no result".
func (r *Response) First() (Image, bool) {
	if r == nil || len(r.Images) == 0 {
		return Image{}, false
	}
	return r.Images[0], true
}

// frame is the union of every message the backend may send.
type frame struct {
	Type   string `json:"type,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
	Response
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}

// encodeErrorFrame builds the error frame a backend sends for a failed request.
func encodeErrorFrame(requestID, msg, reason string) []byte {
	data, _ := json.Marshal(frame{
		Type:     errorFrameType,
		Error:    msg,
		Reason:   reason,
		Response: Response{RequestID: requestID},
	})
	return data
}
