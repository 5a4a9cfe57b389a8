package logging

import (
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects the identity, backend, pipeline settings and
// feature flags of a drawfast process, then emits a single structured event
// summarising how it was started.
type StartupLogger struct {
	name         string
	version      string
	initDuration time.Duration

	backend  map[string]string
	pipeline map[string]string
	features map[string]bool
	regions  int
}

// NewStartupLogger creates a StartupLogger for the named command
// (e.g. "watch", "drawfast-mock").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		backend:  make(map[string]string),
		pipeline: make(map[string]string),
		features: make(map[string]bool),
	}
}

// Version sets the build version baked into the binary.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Backend registers a non-secret backend setting such as the endpoint or
// transport. API keys must never be passed here.
func (s *StartupLogger) Backend(key, value string) *StartupLogger {
	s.backend[key] = value
	return s
}

// Pipeline registers a scheduler or channel setting.
func (s *StartupLogger) Pipeline(key, value string) *StartupLogger {
	s.pipeline[key] = value
	return s
}

// Feature registers a boolean feature flag (e.g. "darkMode", "metrics").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Regions records how many live regions were loaded.
func (s *StartupLogger) Regions(n int) *StartupLogger {
	s.regions = n
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO event with everything collected.
func (s *StartupLogger) Log() {
	identity := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", zerolog.GlobalLevel().String())
	if s.version != "" {
		identity = identity.Str("version", s.version)
	}

	evt := log.Info().Dict("process", identity)
	if len(s.backend) > 0 {
		evt = evt.Dict("backend", dictFromMap(s.backend))
	}
	if len(s.pipeline) > 0 {
		evt = evt.Dict("pipeline", dictFromMap(s.pipeline))
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(s.features) {
			d = d.Bool(k, s.features[k])
		}
		evt = evt.Dict("features", d)
	}
	evt = evt.Int("regions", s.regions)
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}
	evt.Msg("Startup complete")
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Str(k, m[k])
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
