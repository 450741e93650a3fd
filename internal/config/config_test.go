package config

import (
	"testing"
	"time"
)

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("POSTSTUDIO_API_BASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error without POSTSTUDIO_API_BASE_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTSTUDIO_API_BASE_URL", "https://studio.example.com")
	t.Setenv("POSTSTUDIO_POLL_INTERVAL", "")
	t.Setenv("POSTSTUDIO_POLL_TIMEOUT", "")
	t.Setenv("POSTSTUDIO_FLOW_TIMEOUT", "")
	t.Setenv("POSTSTUDIO_RELAY_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("expected 3s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.PollTimeout != 15*time.Minute {
		t.Errorf("expected 15m poll timeout, got %v", cfg.PollTimeout)
	}
	if cfg.FlowTimeout != 5*time.Minute {
		t.Errorf("expected 5m flow timeout, got %v", cfg.FlowTimeout)
	}
	if cfg.RelayAddr != "127.0.0.1:0" {
		t.Errorf("unexpected relay addr: %s", cfg.RelayAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POSTSTUDIO_API_BASE_URL", "https://studio.example.com")
	t.Setenv("POSTSTUDIO_POLL_INTERVAL", "250ms")
	t.Setenv("POSTSTUDIO_POLL_TIMEOUT", "not-a-duration")
	t.Setenv("POSTSTUDIO_HTTP_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("override not applied: %v", cfg.PollInterval)
	}
	if cfg.PollTimeout != 15*time.Minute {
		t.Errorf("malformed duration must fall back to the default, got %v", cfg.PollTimeout)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("expected 5s http timeout, got %v", cfg.HTTPTimeout)
	}
}
