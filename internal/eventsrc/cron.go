package eventsrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
)

// Schedule fires a custom event on a cron spec.
type Schedule struct {
	Spec   string
	Event  string
	Params map[string]ir.Value
}

// Standard five-field specs, an optional leading seconds field, and
// descriptors such as "@every 2s" or "@hourly".
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// CronSource fires custom events on schedules.
type CronSource struct {
	schedules []Schedule

	mu   sync.Mutex
	cron *cron.Cron
}

// NewCronSource validates every schedule up front. All invalid specs are
// reported together.
func NewCronSource(schedules []Schedule) (*CronSource, error) {
	var errs error
	for i, s := range schedules {
		if strings.TrimSpace(s.Event) == "" {
			errs = multierr.Append(errs, fmt.Errorf("schedule %d: event is required", i))
		}
		if _, err := parseSpec(s.Spec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("schedule %d: %w", i, err))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return &CronSource{schedules: schedules}, nil
}

func parseSpec(spec string) (cron.Schedule, error) {
	clean := strings.TrimSpace(spec)
	if clean == "" {
		return nil, errors.New("cron expression is required")
	}
	s, err := cronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", clean, err)
	}
	return s, nil
}

func (c *CronSource) Start(ctx context.Context, sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("cron source already started")
	}

	cr := cron.New(cron.WithParser(cronParser))
	for _, s := range c.schedules {
		sched, err := parseSpec(s.Spec)
		if err != nil {
			return err
		}
		cr.Schedule(sched, c.job(s, sink))
	}
	cr.Start()
	c.cron = cr
	slog.Info("cron source started", "schedules", len(c.schedules))

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()
	return nil
}

func (c *CronSource) job(s Schedule, sink Sink) cron.Job {
	return cron.FuncJob(func() {
		ev := engine.Event{Kind: engine.EventFire, CustomEvent: s.Event, Params: s.Params}
		if !sink.Enqueue(ev) {
			slog.Warn("cron event dropped: sink closed", "event", s.Event, "spec", s.Spec)
			return
		}
		slog.Debug("cron event enqueued", "event", s.Event, "spec", s.Spec)
	})
}

// Stop halts the scheduler and waits for running jobs.
func (c *CronSource) Stop() error {
	c.mu.Lock()
	cr := c.cron
	c.mu.Unlock()
	if cr == nil {
		return nil
	}
	<-cr.Stop().Done()
	return nil
}

// entries exposes the scheduled jobs for tests.
func (c *CronSource) entries() []cron.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return nil
	}
	return c.cron.Entries()
}
