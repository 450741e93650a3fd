package studio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mquinn/poststudio/internal/config"
	"github.com/mquinn/poststudio/internal/connect"
	"github.com/mquinn/poststudio/internal/generation"
	"github.com/mquinn/poststudio/internal/studioapi"
)

// studioBackend scripts the backend for a whole session: start returns a
// fixed job ID, status serves the snapshots in order and repeats the last.
type studioBackend struct {
	mu            sync.Mutex
	snapshots     []studioapi.Snapshot
	statusCalls   int
	scheduleCalls int
	lastLocator   string
	publishCalls  int
	creds         studioapi.CredentialStatus
}

func (b *studioBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generation/start", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"jobId": "job-e2e"})
	})
	mux.HandleFunc("/api/generation/job-e2e/status", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		i := b.statusCalls
		if i >= len(b.snapshots) {
			i = len(b.snapshots) - 1
		}
		snap := b.snapshots[i]
		b.statusCalls++
		b.mu.Unlock()
		json.NewEncoder(w).Encode(snap)
	})
	mux.HandleFunc("/api/twitter/credentials", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		creds := b.creds
		b.mu.Unlock()
		json.NewEncoder(w).Encode(creds)
	})
	mux.HandleFunc("/api/schedule/lookup", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.scheduleCalls++
		b.lastLocator = r.URL.Query().Get("locator")
		b.mu.Unlock()
		json.NewEncoder(w).Encode(studioapi.ScheduleRecord{
			ScheduleID:   "sched-1",
			MediaLocator: r.URL.Query().Get("locator"),
		})
	})
	mux.HandleFunc("/api/twitter/publish", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.publishCalls++
		b.mu.Unlock()
		json.NewEncoder(w).Encode(studioapi.PublishResult{TweetID: "tw-1"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (b *studioBackend) counts() (status, schedule, publish int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls, b.scheduleCalls, b.publishCalls
}

func newTestSession(t *testing.T, b *studioBackend, timeout time.Duration) *Session {
	t.Helper()
	server := b.server(t)
	cfg := &config.Config{
		APIBaseURL:   server.URL,
		APIToken:     "test-token",
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  timeout,
		FlowTimeout:  time.Second,
		SettleDelay:  time.Millisecond,
		RelayAddr:    "127.0.0.1:0",
	}
	s, err := New(Options{Config: cfg, OpenURL: func(string) error { return nil }})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitJob(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("generation never finished: %v", err)
	}
}

func TestSessionGenerateLifecycle(t *testing.T) {
	b := &studioBackend{
		snapshots: []studioapi.Snapshot{
			{
				Status:          studioapi.StatusRunning,
				ProgressPercent: 40,
				ProgressMessage: "Drafting posts",
				PerItemMetadata: map[string]studioapi.ItemMeta{
					"item_1": {Text: "Post one"},
					"item_2": {Text: "Post two"},
					"item_3": {Text: "Post three"},
				},
			},
			{
				Status:          studioapi.StatusRunning,
				ProgressPercent: 80,
				PerItemMetadata: map[string]studioapi.ItemMeta{
					"item_4": {Text: "Thread opener", ThreadArray: []string{"reply 1", "reply 2"}},
				},
			},
			{Status: studioapi.StatusCompleted, ProgressPercent: 100},
		},
	}
	s := newTestSession(t, b, time.Second)

	err := s.Generate(context.Background(), GenerateRequest{
		TargetID: "acct-7",
		Count:    5,
		Mix:      studioapi.SlotMix{Posts: 3, Threads: 1, Videos: 1},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitJob(t, s)

	progress := s.Progress()
	if progress.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", progress.Status)
	}
	if progress.Percent != 100 {
		t.Errorf("expected 100%%, got %d", progress.Percent)
	}
	if progress.JobID != "job-e2e" {
		t.Errorf("unexpected job id: %s", progress.JobID)
	}

	slots := s.Slots()
	if len(slots) != 5 {
		t.Fatalf("expected exactly 5 slots, got %d", len(slots))
	}
	for i := 0; i < 4; i++ {
		if slots[i].Text == generation.PlaceholderText {
			t.Errorf("slot %d was never populated", i+1)
		}
	}
	if slots[3].Text != "Thread opener" || len(slots[3].ThreadArray) != 2 {
		t.Errorf("slot 4 content wrong: %+v", slots[3])
	}
	if slots[4].Text != generation.PlaceholderText {
		t.Errorf("untouched slot 5 must retain its placeholder, got %q", slots[4].Text)
	}
}

func TestSessionFailureSurfacesMessage(t *testing.T) {
	b := &studioBackend{
		snapshots: []studioapi.Snapshot{
			{Status: studioapi.StatusRunning, ProgressPercent: 10},
			{Status: studioapi.StatusFailed, ProgressMessage: "generator crashed"},
		},
	}
	s := newTestSession(t, b, time.Second)

	if err := s.Generate(context.Background(), GenerateRequest{TargetID: "acct-7", Count: 2, Mix: studioapi.SlotMix{Posts: 2}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitJob(t, s)

	progress := s.Progress()
	if progress.Status != StatusFailed {
		t.Errorf("expected failed, got %s", progress.Status)
	}
	if progress.Message != "generator crashed" {
		t.Errorf("expected server message, got %q", progress.Message)
	}
}

func TestSessionProgressReportsVideoSlot(t *testing.T) {
	b := &studioBackend{
		snapshots: []studioapi.Snapshot{
			{
				Status:          studioapi.StatusRunning,
				ProgressPercent: 70,
				ProgressMessage: "Rendering video",
				Workflow:        studioapi.WorkflowMeta{Stage: "video", CurrentVideoSlot: 3},
			},
		},
	}
	s := newTestSession(t, b, time.Minute)

	if err := s.Generate(context.Background(), GenerateRequest{TargetID: "acct-7", Count: 3, Mix: studioapi.SlotMix{Posts: 2, Videos: 1}}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Progress().VideoSlot != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("workflow video slot never surfaced: %+v", s.Progress())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionStalledAfterDeadline(t *testing.T) {
	b := &studioBackend{
		snapshots: []studioapi.Snapshot{{Status: studioapi.StatusRunning, ProgressPercent: 50}},
	}
	s := newTestSession(t, b, 40*time.Millisecond)

	if err := s.Generate(context.Background(), GenerateRequest{TargetID: "acct-7", Count: 1, Mix: studioapi.SlotMix{Posts: 1}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitJob(t, s)

	if progress := s.Progress(); progress.Status != StatusStalled {
		t.Errorf("expected stalled after deadline, got %s", progress.Status)
	}
}

func TestSessionCloseStopsPolling(t *testing.T) {
	b := &studioBackend{
		snapshots: []studioapi.Snapshot{{Status: studioapi.StatusRunning, ProgressPercent: 50}},
	}
	s := newTestSession(t, b, time.Minute)

	if err := s.Generate(context.Background(), GenerateRequest{TargetID: "acct-7", Count: 1, Mix: studioapi.SlotMix{Posts: 1}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	s.Close()
	s.Close()
	waitJob(t, s)

	// The poll goroutine has exited; give a request already on the wire
	// time to land before taking the baseline.
	time.Sleep(20 * time.Millisecond)
	after, _, _ := b.counts()
	time.Sleep(40 * time.Millisecond)
	final, _, _ := b.counts()
	if final != after {
		t.Errorf("polling continued after close: %d -> %d", after, final)
	}
}

func TestSessionScheduleLookupUsesCanonicalLocator(t *testing.T) {
	b := &studioBackend{
		snapshots: []studioapi.Snapshot{
			{
				Status:          studioapi.StatusCompleted,
				ProgressPercent: 100,
				PerItemMetadata: map[string]studioapi.ItemMeta{
					"item_1": {Text: "photo", ImageURL: "https://bucket1.s3.amazonaws.com/path/key.png?X-Amz-Signature=abc"},
					"item_2": {Text: "ephemeral", ImageURL: "https://files.oaiusercontent.com/file-123"},
				},
			},
		},
	}
	s := newTestSession(t, b, time.Second)

	if err := s.Generate(context.Background(), GenerateRequest{TargetID: "acct-7", Count: 2, Mix: studioapi.SlotMix{Posts: 2}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitJob(t, s)

	if _, known := s.ScheduledHint(1); known {
		t.Error("hint must not be known before any lookup")
	}

	record, err := s.ScheduleFor(context.Background(), 1)
	if err != nil {
		t.Fatalf("schedule lookup: %v", err)
	}
	if record == nil || record.ScheduleID != "sched-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	b.mu.Lock()
	if b.lastLocator != "s3://bucket1/path/key.png" {
		t.Errorf("lookup used %q, want canonical locator", b.lastLocator)
	}
	b.mu.Unlock()

	if hint, known := s.ScheduledHint(1); !known || hint == nil {
		t.Errorf("hint should reflect the resolved lookup: %+v, %v", hint, known)
	}

	// Second lookup is served from cache.
	if _, err := s.ScheduleFor(context.Background(), 1); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	_, scheduleCalls, _ := b.counts()
	if scheduleCalls != 1 {
		t.Errorf("expected 1 backend lookup, got %d", scheduleCalls)
	}

	// Ephemeral media never reaches the backend.
	record, err = s.ScheduleFor(context.Background(), 2)
	if err != nil || record != nil {
		t.Errorf("ephemeral media must degrade to no schedule, got %+v, %v", record, err)
	}
	if _, scheduleCalls, _ := b.counts(); scheduleCalls != 1 {
		t.Errorf("ephemeral lookup hit the backend")
	}

	if _, err := s.ScheduleFor(context.Background(), 99); err == nil {
		t.Error("expected an error for an out-of-range slot")
	}
}

func TestSessionPublishInvalidatesScheduleCache(t *testing.T) {
	b := &studioBackend{
		creds: studioapi.CredentialStatus{OAuth2Valid: true, OAuth1Valid: true},
		snapshots: []studioapi.Snapshot{
			{
				Status:          studioapi.StatusCompleted,
				ProgressPercent: 100,
				PerItemMetadata: map[string]studioapi.ItemMeta{
					"item_1": {Text: "photo", ImageURL: "https://bucket1.s3.amazonaws.com/one.png"},
				},
			},
		},
	}
	s := newTestSession(t, b, time.Second)

	if err := s.Generate(context.Background(), GenerateRequest{TargetID: "acct-7", Count: 1, Mix: studioapi.SlotMix{Posts: 1}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitJob(t, s)

	if _, err := s.ScheduleFor(context.Background(), 1); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if _, err := s.Publish(context.Background(), 1); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := s.ScheduleFor(context.Background(), 1); err != nil {
		t.Fatalf("post-publish lookup: %v", err)
	}

	_, scheduleCalls, publishCalls := b.counts()
	if publishCalls != 1 {
		t.Errorf("expected 1 publish, got %d", publishCalls)
	}
	if scheduleCalls != 2 {
		t.Errorf("publish must invalidate the schedule entry, got %d lookups", scheduleCalls)
	}
}

func TestSessionAffordanceFollowsCredentialState(t *testing.T) {
	b := &studioBackend{
		creds: studioapi.CredentialStatus{OAuth2Valid: true, OAuth1Valid: false},
		snapshots: []studioapi.Snapshot{
			{Status: studioapi.StatusCompleted, ProgressPercent: 100},
		},
	}
	s := newTestSession(t, b, time.Second)

	if err := s.Generate(context.Background(), GenerateRequest{TargetID: "acct-7", Count: 2, Mix: studioapi.SlotMix{Posts: 1, Videos: 1}}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	waitJob(t, s)

	// No validation record yet: everything defaults to reconnect.
	if a, ok := s.Affordance(1); !ok || a != connect.AffordanceReconnect {
		t.Errorf("expected reconnect before validation, got %v, %v", a, ok)
	}

	if _, err := s.RefreshCredentials(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if a, _ := s.Affordance(1); a != connect.AffordancePost {
		t.Errorf("image slot with valid oauth2 must offer post, got %v", a)
	}
	// Slot 2 is planned video; it needs oauth1 as well.
	if a, _ := s.Affordance(2); a != connect.AffordanceReconnect {
		t.Errorf("video slot without oauth1 must offer reconnect, got %v", a)
	}

	if _, ok := s.Affordance(99); ok {
		t.Error("expected ok=false for an out-of-range slot")
	}
}
