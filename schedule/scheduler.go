// Package schedule runs registered jobs at a fixed daily wall-clock
// time in a named timezone. The loop polls for due jobs and keeps the
// process alive until the operator stops it.
package schedule

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Job is one scheduled unit of work. A failing job is reported and the
// schedule stays armed for its next occurrence.
type Job func(ctx context.Context) error

type entry struct {
	name             string
	loc              *time.Location
	hour, minute, sec int
	fn               Job
	next             time.Time
}

func (e *entry) nextAfter(now time.Time) time.Time {
	local := now.In(e.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), e.hour, e.minute, e.sec, 0, e.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scheduler holds the job table and the polling loop.
type Scheduler struct {
	clock Clock
	poll  time.Duration
	stdin io.Reader
	jobs  []*entry
}

// New returns a scheduler polling once per second on the system clock.
func New() *Scheduler {
	return &Scheduler{
		clock: systemClock{},
		poll:  time.Second,
		stdin: os.Stdin,
	}
}

// SetClock swaps the time source. Test seam.
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// SetPoll adjusts the polling interval. Test seam.
func (s *Scheduler) SetPoll(d time.Duration) {
	s.poll = d
}

// SetStdin swaps the operator input stream. Test seam.
func (s *Scheduler) SetStdin(r io.Reader) {
	s.stdin = r
}

// Daily registers fn to run every day at the given wall-clock time
// ("15:04:05") in the named timezone. The first occurrence is armed
// here, before Run starts polling.
func (s *Scheduler) Daily(name, at, tz string, fn Job) error {
	parsed, err := time.Parse("15:04:05", at)
	if err != nil {
		return fmt.Errorf("parse schedule time %q: %w", at, err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", tz, err)
	}

	job := &entry{
		name:   name,
		loc:    loc,
		hour:   parsed.Hour(),
		minute: parsed.Minute(),
		sec:    parsed.Second(),
		fn:     fn,
	}
	job.next = job.nextAfter(s.clock.Now())
	s.jobs = append(s.jobs, job)

	slog.Info("job scheduled",
		slog.String("job", job.name),
		slog.Time("next_run", job.next),
	)
	return nil
}

// Run polls for due jobs until ctx is cancelled or the operator types
// "s" on the input stream. Each occurrence fires at most once; job
// errors are reported and never stop the loop, so the next scheduled
// time still fires.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	go s.listenForStop(ctx, stop)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runPending(ctx)
		}
	}
}

func (s *Scheduler) runPending(ctx context.Context) {
	now := s.clock.Now()
	for _, job := range s.jobs {
		if now.Before(job.next) {
			continue
		}
		job.next = job.nextAfter(now)

		slog.Info("job firing", slog.String("job", job.name))
		if err := job.fn(ctx); err != nil {
			slog.Error("job failed",
				slog.String("job", job.name),
				slog.Any("error", err),
				slog.Time("next_run", job.next),
			)
			continue
		}
		slog.Info("job complete",
			slog.String("job", job.name),
			slog.Time("next_run", job.next),
		)
	}
}

// listenForStop reads operator input line by line and cancels the loop
// on "s" or "S".
func (s *Scheduler) listenForStop(ctx context.Context, stop context.CancelFunc) {
	scanner := bufio.NewScanner(s.stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "s") {
			slog.Info("stop requested by operator")
			stop()
			return
		}
	}
}
