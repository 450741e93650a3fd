package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupSummary collects the resolved configuration, reachable endpoints,
// and feature switches of a client process, then emits a single structured
// zerolog event describing the state it booted with. One event per boot
// keeps troubleshooting sessions short: everything that shapes behavior is
// in one place instead of scattered across flag parsing and env lookups.
type StartupSummary struct {
	name         string
	version      string
	initDuration time.Duration

	endpoints map[string]string
	features  map[string]bool
	config    map[string]string
}

// NewStartupSummary creates a StartupSummary for the given process name
// (e.g. "poststudio").
func NewStartupSummary(name string) *StartupSummary {
	return &StartupSummary{
		name:      name,
		endpoints: make(map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

// Version sets the release version baked into the binary at build time.
func (s *StartupSummary) Version(v string) *StartupSummary {
	s.version = v
	return s
}

// Endpoint registers a remote endpoint this process will talk to.
// Only the base URL is logged, never credentials.
func (s *StartupSummary) Endpoint(label, url string) *StartupSummary {
	s.endpoints[label] = url
	return s
}

// Feature registers a boolean feature switch (e.g. "relay", "browserOpen").
func (s *StartupSummary) Feature(name string, enabled bool) *StartupSummary {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupSummary) Config(key, value string) *StartupSummary {
	s.config[key] = value
	return s
}

// InitDuration records how long process initialization took.
func (s *StartupSummary) InitDuration(d time.Duration) *StartupSummary {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupSummary) Log() {
	evt := log.Info()

	procDict := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv("POSTSTUDIO_LOG_LEVEL"))
	if s.version != "" {
		procDict = procDict.Str("version", s.version)
	}
	evt = evt.Dict("process", procDict)

	if len(s.endpoints) > 0 {
		evt = evt.Dict("endpoints", dictFromMap(s.endpoints))
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Startup complete")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
