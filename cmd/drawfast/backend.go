package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/drawfast/internal/config"
	"github.com/fpang/drawfast/internal/inference"
	"github.com/fpang/drawfast/internal/logging"
)

// newDialer returns the transport selected by cfg.Transport.
func newDialer(ctx context.Context, cfg config.Config) (inference.Dialer, error) {
	switch cfg.Transport {
	case config.TransportGemini:
		gen, err := inference.NewGeminiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		return inference.GeminiDialer{Generator: gen}, nil
	case config.TransportWebSocket:
		url, err := cfg.RealtimeURL()
		if err != nil {
			return nil, err
		}
		header := http.Header{}
		if cfg.APIKey != "" {
			header.Set("Authorization", "Key "+cfg.APIKey)
		}
		return inference.WebSocketDialer{URL: url, Header: header}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// openChannel connects the inference channel or exits.
func openChannel(ctx context.Context, cfg config.Config) *inference.Channel {
	dialer, err := newDialer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport).Msg("Failed to create inference transport")
	}
	ch, err := inference.New(ctx, dialer, inference.Options{
		Timeout:      cfg.Timeout,
		SendInterval: cfg.SendInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport).Msg("Failed to connect to inference backend")
	}
	return ch
}

// describeBackend adds the non-secret backend settings to a startup summary.
func describeBackend(s *logging.StartupLogger, cfg config.Config) *logging.StartupLogger {
	s.Backend("transport", cfg.Transport).
		Backend("timeout", cfg.Timeout.String())
	switch cfg.Transport {
	case config.TransportGemini:
		s.Backend("model", cfg.Gemini.Model)
	default:
		url, _ := cfg.RealtimeURL()
		s.Backend("url", url)
	}
	return s.Feature("apiKey", cfg.APIKey != "" || cfg.Gemini.APIKey != "")
}
