package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"rollcall/internal/clock"
	"rollcall/internal/model"
	"rollcall/internal/store"
	"rollcall/internal/syncer"
)

// DefaultCutoffHour is the local hour from which marks can no longer change.
const DefaultCutoffHour = 12

const (
	payloadDateLayout = "2006-01-02"
	payloadTimeLayout = "15:04:05"
)

// State of a daily record.
type State int

const (
	Unmarked State = iota
	PartiallyMarked
	FullyMarked
	Locked
)

func (s State) String() string {
	switch s {
	case Unmarked:
		return "unmarked"
	case PartiallyMarked:
		return "partially_marked"
	case FullyMarked:
		return "fully_marked"
	case Locked:
		return "locked"
	}
	return "unknown"
}

// Transition is emitted after every accepted change, including a submit. It
// carries the full record so the hook can persist it as-is.
type Transition struct {
	Key    model.DailyKey
	From   State
	To     State
	Marks  map[string]model.Mark
	Locked bool
}

// TransitionFunc handles a transition (normally: auto-save).
type TransitionFunc func(ctx context.Context, t Transition)

// Deliverer hands a payload to the sync engine.
type Deliverer interface {
	Deliver(ctx context.Context, p model.Payload) (syncer.Outcome, error)
}

// Config describes one session.
type Config struct {
	Teacher      model.Teacher
	Students     []model.Student
	Clock        clock.Clock
	// CutoffHour is the first local hour (1-23) in which marks are refused.
	// Zero selects DefaultCutoffHour; there is no way to close marking all day.
	CutoffHour   int
	Sync         Deliverer
	OnTransition TransitionFunc
}

// Session owns the marks for one class on one day. Operations are serialized.
type Session struct {
	mu           sync.Mutex
	key          model.DailyKey
	date         time.Time
	teacher      model.Teacher
	students     []model.Student
	index        map[string]struct{}
	clock        clock.Clock
	cutoff       int
	sync         Deliverer
	onTransition TransitionFunc

	marks  map[string]model.Mark
	locked bool
}

// NewSession creates an empty session for today.
func NewSession(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.CutoffHour < 1 || cfg.CutoffHour > 23 {
		cfg.CutoffHour = DefaultCutoffHour
	}
	today := clock.Today(cfg.Clock)
	index := make(map[string]struct{}, len(cfg.Students))
	for _, st := range cfg.Students {
		index[st.ID] = struct{}{}
	}
	return &Session{
		key:          clock.Key(cfg.Teacher.ClassName, cfg.Teacher.Section, today),
		date:         today,
		teacher:      cfg.Teacher,
		students:     cfg.Students,
		index:        index,
		clock:        cfg.Clock,
		cutoff:       cfg.CutoffHour,
		sync:         cfg.Sync,
		onTransition: cfg.OnTransition,
		marks:        make(map[string]model.Mark),
	}
}

// Restore loads a persisted record. Marks for students no longer on the
// roster and unknown statuses are dropped.
func (s *Session) Restore(rec store.DailyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restore(rec)
}

// Reload adopts a record another process wrote for the same key. A locked
// session keeps its own marks since the lock is terminal.
func (s *Session) Reload(rec store.DailyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return
	}
	s.restore(rec)
}

func (s *Session) restore(rec store.DailyRecord) {
	s.marks = make(map[string]model.Mark, len(rec.Attendance))
	for id, m := range rec.Attendance {
		if _, ok := s.index[id]; ok && m.Valid() {
			s.marks[id] = m
		}
	}
	s.locked = rec.Locked
}

// Key returns the daily key this session is scoped to.
func (s *Session) Key() model.DailyKey { return s.key }

// Date returns the calendar day of the session.
func (s *Session) Date() time.Time { return s.date }

// SetMark records a mark for one student.
func (s *Session) SetMark(ctx context.Context, studentID string, mark model.Mark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMutable(studentID); err != nil {
		return err
	}
	if !mark.Valid() {
		return ErrInvalidMark
	}
	from := s.stateLocked()
	s.marks[studentID] = mark
	s.emit(ctx, from)
	return nil
}

// ClearMark removes a student's mark. Clearing an unmarked student is a no-op.
func (s *Session) ClearMark(ctx context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMutable(studentID); err != nil {
		return err
	}
	if _, ok := s.marks[studentID]; !ok {
		return nil
	}
	from := s.stateLocked()
	delete(s.marks, studentID)
	s.emit(ctx, from)
	return nil
}

// checkMutable applies the lock guard first, then the time window, which is
// re-read from the clock on every call.
func (s *Session) checkMutable(studentID string) error {
	if s.locked {
		return ErrLocked
	}
	if s.clock.Now().Hour() >= s.cutoff {
		return &WindowError{Cutoff: s.cutoff}
	}
	if _, ok := s.index[studentID]; !ok {
		return ErrUnknownStudent
	}
	return nil
}

// CanSubmit reports whether every roster student has a mark.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete()
}

func (s *Session) complete() bool {
	return len(s.marks) == len(s.students)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.locked:
		return Locked
	case len(s.marks) == 0 && len(s.students) > 0:
		return Unmarked
	case s.complete():
		return FullyMarked
	}
	return PartiallyMarked
}

// SubmitRequest asks for a submission. Confirm is consulted only when Lock
// would newly lock the day.
type SubmitRequest struct {
	Lock    bool
	Confirm func() bool
}

// Result describes a finished submission.
type Result struct {
	Outcome syncer.Outcome
	Locked  bool
	Notice  string
	Payload model.Payload
}

// Submit validates completeness, persists the record (locking it when
// requested) and hands a fresh payload to the sync engine. The marking time
// window does not apply here. A day that is already locked can be submitted
// again; it stays locked and needs no confirmation.
func (s *Session) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.complete() {
		return Result{}, ErrIncomplete
	}
	lock := req.Lock || s.locked
	if req.Lock && !s.locked {
		if req.Confirm == nil || !req.Confirm() {
			return Result{}, ErrLockNotConfirmed
		}
	}

	p := s.payload()
	from := s.stateLocked()
	s.locked = lock
	s.emit(ctx, from)

	res := Result{Locked: s.locked, Payload: p}
	outcome, err := s.sync.Deliver(ctx, p)
	res.Outcome = outcome
	if errors.Is(err, syncer.ErrNotQueued) {
		// the marks are kept locally; only the teacher needs to know
		res.Notice = Notice(err)
		return res, nil
	}
	if err != nil {
		res.Notice = Notice(err)
		return res, err
	}
	res.Notice = submitNotice(outcome, lock)
	return res, nil
}

func (s *Session) payload() model.Payload {
	now := s.clock.Now()
	entries := make([]model.StudentEntry, 0, len(s.students))
	for _, st := range s.students {
		entries = append(entries, model.StudentEntry{RollNo: st.RollNo, Name: st.Name, Status: s.marks[st.ID]})
	}
	return model.Payload{
		ClassName: s.teacher.ClassName,
		Section:   s.teacher.Section,
		Teacher:   s.teacher.Username,
		Date:      now.Format(payloadDateLayout),
		Time:      now.Format(payloadTimeLayout),
		Students:  entries,
	}
}

func (s *Session) emit(ctx context.Context, from State) {
	if s.onTransition == nil {
		return
	}
	s.onTransition(ctx, Transition{
		Key:    s.key,
		From:   from,
		To:     s.stateLocked(),
		Marks:  s.copyMarks(),
		Locked: s.locked,
	})
}

func (s *Session) copyMarks() map[string]model.Mark {
	out := make(map[string]model.Mark, len(s.marks))
	for k, v := range s.marks {
		out[k] = v
	}
	return out
}

// StudentRow is a roster entry with its current mark.
type StudentRow struct {
	model.Student
	Mark model.Mark `json:"mark,omitempty"`
}

// View is a read-only snapshot for display.
type View struct {
	Key       model.DailyKey `json:"key"`
	Date      string         `json:"date"`
	Teacher   model.Teacher  `json:"teacher"`
	State     string         `json:"state"`
	Locked    bool           `json:"locked"`
	CanSubmit bool           `json:"can_submit"`
	Marked    int            `json:"marked"`
	Total     int            `json:"total"`
	Students  []StudentRow   `json:"students"`
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]StudentRow, 0, len(s.students))
	for _, st := range s.students {
		rows = append(rows, StudentRow{Student: st, Mark: s.marks[st.ID]})
	}
	return View{
		Key:       s.key,
		Date:      s.date.Format(payloadDateLayout),
		Teacher:   s.teacher,
		State:     s.stateLocked().String(),
		Locked:    s.locked,
		CanSubmit: s.complete(),
		Marked:    len(s.marks),
		Total:     len(s.students),
		Students:  rows,
	}
}
