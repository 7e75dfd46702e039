// Package schedule runs cron-triggered hook matchers. It is the collaborator
// the hook core hands schedule-based matchers to; event-based dispatch never
// goes through here.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. The context is cancelled when the
// scheduler stops.
type Job func(ctx context.Context)

// ValidSpec checks a cron expression and optional timezone without
// scheduling anything. Configuration validation delegates here so its checks
// cannot drift from what Add accepts.
func ValidSpec(spec, timezone string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if timezone != "" {
		return ValidTimezone(timezone)
	}
	return nil
}

// ValidTimezone checks that timezone names a loadable location.
func ValidTimezone(timezone string) error {
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}
	return nil
}

// Scheduler wraps a cron runner with timezone-aware entries and a stop
// context. Missed-fire policy is the cron library's: no catch-up, the next
// matching tick fires.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a stopped scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job on the given standard cron spec. A non-empty timezone
// evaluates the spec in that location; otherwise the local time applies.
func (s *Scheduler) Add(spec, timezone string, job Job) error {
	if timezone != "" {
		spec = "CRON_TZ=" + timezone + " " + spec
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		job(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling %q: %w", spec, err)
	}
	return nil
}

// Start begins firing entries. Calling Start on a running or stopped
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop cancels pending timers and waits for in-flight jobs. No job runs
// after Stop returns. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
}
