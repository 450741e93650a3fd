package generation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mquinn/poststudio/internal/studioapi"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 15 * time.Minute
)

// StatusFunc fetches the current snapshot for a job.
// (*studioapi.Client).JobStatus satisfies it directly.
type StatusFunc func(ctx context.Context, jobID string) (*studioapi.Snapshot, error)

// Handlers receives poll outcomes. All callbacks run synchronously on the
// polling goroutine, one at a time, in poll order. Any nil callback is
// skipped.
//
// OnComplete and OnError are terminal and mutually exclusive; whichever
// fires does so exactly once, after every OnProgress call. OnTimeout fires
// once if the hard polling deadline passes before the job reaches a
// terminal status; leave it nil to keep the deadline stop silent.
type Handlers struct {
	OnProgress func(snap *studioapi.Snapshot)
	OnComplete func(snap *studioapi.Snapshot)
	OnError    func(message string)
	OnTimeout  func()
}

// Options tunes a Poller. Zero values select the defaults (3s interval,
// 15m deadline).
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poller runs at most one polling loop at a time. Starting a new job while
// a loop is active cancels the old loop first, so a consumer can never leak
// a second timer for a superseded job.
type Poller struct {
	status   StatusFunc
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	active *Handle
}

// NewPoller creates a Poller that fetches snapshots with status.
func NewPoller(status StatusFunc, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &Poller{status: status, interval: interval, timeout: timeout}
}

// Handle identifies one polling loop. Stop cancels it; Done closes when the
// loop has fully exited.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the polling loop. It is idempotent and safe to call after
// the loop has already stopped on its own, so teardown paths may call it
// unconditionally. No handler fires as a consequence of Stop.
func (h *Handle) Stop() {
	h.cancel()
}

// Done closes once the polling goroutine has exited and no further handler
// can fire.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start cancels any loop this Poller is running, then begins polling jobID:
// one poll immediately, then one per interval until a terminal status, the
// hard deadline, a Stop call, or ctx cancellation.
func (p *Poller) Start(ctx context.Context, jobID string, handlers Handlers) *Handle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.active
	p.active = h
	p.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	log.Info().Str("jobId", jobID).Dur("interval", p.interval).Dur("timeout", p.timeout).Msg("Starting job poll loop")
	go p.run(runCtx, jobID, handlers, h)
	return h
}

func (p *Poller) run(ctx context.Context, jobID string, handlers Handlers, h *Handle) {
	defer close(h.done)
	defer h.cancel()

	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	start := time.Now()
	polls := 0
	for {
		polls++
		if terminal := p.poll(ctx, jobID, handlers); terminal {
			p.clear(h)
			log.Debug().Str("jobId", jobID).Int("polls", polls).Dur("elapsed", time.Since(start)).Msg("Job poll loop finished")
			return
		}

		select {
		case <-ctx.Done():
			p.clear(h)
			log.Debug().Str("jobId", jobID).Int("polls", polls).Msg("Job poll loop stopped")
			return
		case <-deadline.C:
			p.clear(h)
			log.Warn().Str("jobId", jobID).Int("polls", polls).Dur("elapsed", time.Since(start)).Msg("Job poll deadline reached before terminal status")
			if handlers.OnTimeout != nil {
				handlers.OnTimeout()
			}
			return
		case <-ticker.C:
		}
	}
}

// poll fetches one snapshot and dispatches it. It reports whether the loop
// should stop.
func (p *Poller) poll(ctx context.Context, jobID string, handlers Handlers) bool {
	snap, err := p.status(ctx, jobID)
	if ctx.Err() != nil {
		// Stopped while the request was in flight; the result no longer
		// has a consumer.
		return true
	}
	if err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("Job poll failed, retrying on next tick")
		return false
	}

	switch {
	case snap.Completed():
		log.Info().Str("jobId", jobID).Int("progressPercent", snap.ProgressPercent).Msg("Generation job completed")
		if handlers.OnComplete != nil {
			handlers.OnComplete(snap)
		}
		return true
	case snap.Failed():
		message := snap.ProgressMessage
		if message == "" {
			message = "generation job failed"
		}
		log.Warn().Str("jobId", jobID).Str("message", message).Msg("Generation job failed")
		if handlers.OnError != nil {
			handlers.OnError(message)
		}
		return true
	default:
		if handlers.OnProgress != nil {
			handlers.OnProgress(snap)
		}
		return false
	}
}

// clear releases the active slot if h still owns it. A newer Start may
// have already replaced it.
func (p *Poller) clear(h *Handle) {
	p.mu.Lock()
	if p.active == h {
		p.active = nil
	}
	p.mu.Unlock()
}
