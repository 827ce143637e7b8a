// Package flusher drains the offline queue in the background.
package flusher

import (
	"context"
	"log"
	"time"

	"rollcall/internal/queue"
	"rollcall/internal/syncer"
)

// Syncer flushes the offline queue.
type Syncer interface {
	FlushQueue(ctx context.Context) (syncer.FlushReport, error)
}

// Flusher runs a flush on every tick and on every queue event.
type Flusher struct {
	Sync     Syncer
	Interval time.Duration
	Logger   *log.Logger
}

// Run blocks until ctx is done or the event channel closes. A nil events
// channel means ticks only.
func (f *Flusher) Run(ctx context.Context, events <-chan queue.Message) error {
	interval := f.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.flush(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.flush(ctx, "tick")
		case msg, ok := <-events:
			if !ok {
				return nil
			}
			switch msg.Type {
			case queue.TypeSubmissionQueued:
				var evt queue.SubmissionQueued
				if err := msg.Decode(&evt); err == nil {
					f.logf("submission queued for %s-%s %s by %s", evt.ClassName, evt.Section, evt.Date, evt.Teacher)
				}
				f.flush(ctx, msg.Type)
			case queue.TypeFlushRequested:
				f.flush(ctx, msg.Type)
			default:
				f.logf("ignoring event %q", msg.Type)
			}
		}
	}
}

func (f *Flusher) flush(ctx context.Context, reason string) {
	report, err := f.Sync.FlushQueue(ctx)
	switch {
	case err != nil:
		f.logf("flush (%s): %v", reason, err)
	case report.Offline:
	case report.Attempted > 0:
		f.logf("flush (%s): %d attempted, %d delivered, %d rejected, %d failed",
			reason, report.Attempted, report.Delivered, report.Rejected, report.Failed)
	}
}

func (f *Flusher) logf(format string, args ...any) {
	if f.Logger != nil {
		f.Logger.Printf(format, args...)
	}
}
