// Package scheduler fires the daily digest job once per calendar day at a
// fixed wall-clock time in a configured time zone.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

type Job func(ctx context.Context) error

// Scheduler owns the single recurring trigger. The fire time is recomputed
// after every run from the current wall clock, so missed firings (process
// asleep or a run straddling the fire time) coalesce into at most one
// catch-up invocation instead of one per missed day.
type Scheduler struct {
	hour   int
	minute int
	loc    *time.Location
	job    Job

	running atomic.Bool
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func New(hour, minute int, loc *time.Location, job Job) *Scheduler {
	return &Scheduler{
		hour:   hour,
		minute: minute,
		loc:    loc,
		job:    job,
		stop:   make(chan struct{}),
	}
}

// Start blocks and fires the job at each scheduled time until the context
// is canceled or Stop is called. Calling Start on a scheduler that is
// already running is a no-op, so re-registration never duplicates the
// trigger.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("[INFO] scheduler already running, ignoring duplicate start")
		return nil
	}

	log.Printf("[INFO] scheduler started, daily digest at %02d:%02d %s",
		s.hour, s.minute, s.loc)

	for {
		next := NextFire(time.Now().In(s.loc), s.hour, s.minute)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.wg.Wait()
			return ctx.Err()
		case <-s.stop:
			timer.Stop()
			s.wg.Wait()
			return nil
		case <-timer.C:
			s.runJob(ctx)
		}
	}
}

// Stop halts the trigger and waits for an in-flight run to finish; a run
// that is already executing is never dropped mid-loop.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// runJob executes one firing. The job gets a context detached from
// cancellation so a shutdown arriving mid-run lets the batch complete; job
// errors are logged and never unschedule the trigger.
func (s *Scheduler) runJob(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.job(context.WithoutCancel(ctx)); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("[ERROR] scheduled digest run failed: %v", err)
	}
}

// NextFire returns the first instant strictly after now that lands on
// hour:minute in now's location.
func NextFire(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next
}
