package attendance

import (
	"context"
	"log"
	"sync"

	"rollcall/internal/clock"
	"rollcall/internal/model"
	"rollcall/internal/roster"
	"rollcall/internal/store"
	"rollcall/internal/syncer"
)

// Syncer is the part of the sync engine a registry drives.
type Syncer interface {
	Deliverer
	FlushQueue(ctx context.Context) (syncer.FlushReport, error)
}

// AutoSave returns a transition hook that mirrors every change into st.
// Storage failures are logged and otherwise ignored.
func AutoSave(st store.StateStore, logger *log.Logger) TransitionFunc {
	return func(ctx context.Context, t Transition) {
		rec := store.DailyRecord{Attendance: t.Marks, Locked: t.Locked}
		if err := st.SaveDaily(ctx, t.Key, rec); err != nil && logger != nil {
			logger.Printf("auto-save %s (%s -> %s): %v", t.Key, t.From, t.To, err)
		}
	}
}

// Registry keeps one live session per daily key. Opening a class on a new
// calendar day yields a fresh session scoped to the new key.
type Registry struct {
	mu       sync.Mutex
	sessions map[model.DailyKey]*Session

	store      store.StateStore
	roster     roster.Repository
	sync       Syncer
	clock      clock.Clock
	cutoffHour int

	Logger *log.Logger
}

// NewRegistry wires the core collaborators together.
func NewRegistry(st store.StateStore, ros roster.Repository, sy Syncer, clk clock.Clock, cutoffHour int) *Registry {
	if clk == nil {
		clk = clock.System{}
	}
	return &Registry{
		sessions:   make(map[model.DailyKey]*Session),
		store:      st,
		roster:     ros,
		sync:       sy,
		clock:      clk,
		cutoffHour: cutoffHour,
		Logger:     log.Default(),
	}
}

// Open returns today's session for the teacher's class, re-reading the
// stored record so changes saved by another process are picked up, then
// flushes the offline queue.
func (r *Registry) Open(ctx context.Context, teacher model.Teacher) *Session {
	s := r.session(ctx, teacher, true)
	if report, err := r.sync.FlushQueue(ctx); err != nil {
		r.logf("flush offline queue: %v", err)
	} else if report.Attempted > 0 {
		r.logf("flushed offline queue: %d attempted, %d delivered", report.Attempted, report.Delivered)
	}
	return s
}

// Session returns today's session without flushing.
func (r *Registry) Session(ctx context.Context, teacher model.Teacher) *Session {
	return r.session(ctx, teacher, false)
}

func (r *Registry) session(ctx context.Context, teacher model.Teacher, reload bool) *Session {
	key := clock.TodayKey(r.clock, teacher.ClassName, teacher.Section)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		if reload {
			// a failed read keeps the live marks
			if rec, ok, err := r.store.LoadDaily(ctx, key); err == nil && ok {
				s.Reload(rec)
			}
		}
		return s
	}
	r.evictStale(key)

	s := NewSession(Config{
		Teacher:      teacher,
		Students:     r.roster.Students(teacher.ClassName, teacher.Section),
		Clock:        r.clock,
		CutoffHour:   r.cutoffHour,
		Sync:         r.sync,
		OnTransition: AutoSave(r.store, r.Logger),
	})
	rec, ok, err := r.store.LoadDaily(ctx, key)
	switch {
	case err != nil:
		r.logf("restore %s, starting empty: %v", key, err)
	case ok:
		s.Restore(rec)
	}
	r.sessions[key] = s
	return s
}

// evictStale drops sessions from earlier days; their records stay in the store.
func (r *Registry) evictStale(current model.DailyKey) {
	today := clock.Today(r.clock)
	for key, s := range r.sessions {
		if key != current && !s.Date().Equal(today) {
			delete(r.sessions, key)
		}
	}
}

// Flush runs the sync engine's queue flush.
func (r *Registry) Flush(ctx context.Context) (syncer.FlushReport, error) {
	return r.sync.FlushQueue(ctx)
}

func (r *Registry) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}
