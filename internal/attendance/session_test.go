package attendance

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/netcheck"
	"rollcall/internal/store"
	"rollcall/internal/syncer"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func at(hour, min int) *stepClock {
	return &stepClock{now: time.Date(2026, time.January, 6, hour, min, 0, 0, time.UTC)}
}

var teacher = model.Teacher{Username: "teacher5a", ClassName: "Grade 5", Section: "A"}

func fixtureStudents(n int) []model.Student {
	all := []model.Student{
		{ID: "1", RollNo: "501", Name: "Muhammad Rayyan Ahmed"},
		{ID: "2", RollNo: "502", Name: "Fatima Noor"},
		{ID: "3", RollNo: "503", Name: "Syed Abdullah Shah"},
		{ID: "4", RollNo: "504", Name: "Ayesha Khan"},
		{ID: "5", RollNo: "505", Name: "Muhammad Omar Farooq"},
	}
	return all[:n]
}

type fakeRemote struct {
	text  string
	err   error
	calls int
}

func (f *fakeRemote) Submit(context.Context, model.Payload) (string, error) {
	f.calls++
	return f.text, f.err
}

type harness struct {
	session *Session
	store   *store.Store
	engine  *syncer.Engine
	remote  *fakeRemote
	clock   *stepClock
	saves   int
}

func newHarness(t *testing.T, n int, clk *stepClock, online bool, remote *fakeRemote) *harness {
	t.Helper()
	h := &harness{store: store.NewMemory(), remote: remote, clock: clk}
	h.engine = syncer.New(netcheck.Static(online), remote, h.store)
	h.engine.Logger = log.New(io.Discard, "", 0)
	save := AutoSave(h.store, nil)
	h.session = NewSession(Config{
		Teacher:  teacher,
		Students: fixtureStudents(n),
		Clock:    clk,
		Sync:     h.engine,
		OnTransition: func(ctx context.Context, tr Transition) {
			h.saves++
			save(ctx, tr)
		},
	})
	return h
}

func (h *harness) markAll(t *testing.T, m model.Mark) {
	t.Helper()
	for _, st := range h.session.students {
		if err := h.session.SetMark(context.Background(), st.ID, m); err != nil {
			t.Fatalf("SetMark(%s): %v", st.ID, err)
		}
	}
}

func (h *harness) stored(t *testing.T) store.DailyRecord {
	t.Helper()
	rec, ok, err := h.store.LoadDaily(context.Background(), h.session.Key())
	if err != nil || !ok {
		t.Fatalf("LoadDaily ok=%v err=%v", ok, err)
	}
	return rec
}

func confirmYes() bool { return true }

func TestSetMark_AutoSavesWithoutLocking(t *testing.T) {
	h := newHarness(t, 3, at(9, 0), true, &fakeRemote{text: "Success"})
	ctx := context.Background()

	if err := h.session.SetMark(ctx, "2", model.MarkLate); err != nil {
		t.Fatalf("SetMark: %v", err)
	}
	rec := h.stored(t)
	if rec.Attendance["2"] != model.MarkLate || rec.Locked {
		t.Fatalf("stored = %#v, want 2=L unlocked", rec)
	}
	if h.session.State() != PartiallyMarked {
		t.Fatalf("State = %v, want partially_marked", h.session.State())
	}
}

func TestSetMark_Rejections(t *testing.T) {
	h := newHarness(t, 3, at(9, 0), true, &fakeRemote{text: "Success"})
	ctx := context.Background()

	if err := h.session.SetMark(ctx, "99", model.MarkPresent); !errors.Is(err, ErrUnknownStudent) {
		t.Fatalf("unknown student err = %v", err)
	}
	if err := h.session.SetMark(ctx, "1", model.Mark("X")); !errors.Is(err, ErrInvalidMark) {
		t.Fatalf("invalid mark err = %v", err)
	}
	if h.saves != 0 {
		t.Fatalf("rejected marks triggered %d saves", h.saves)
	}
}

func TestCanSubmit_IffEveryStudentMarked(t *testing.T) {
	for n := 0; n <= 5; n++ {
		h := newHarness(t, n, at(8, 0), true, &fakeRemote{text: "Success"})
		for i, st := range h.session.students {
			if h.session.CanSubmit() {
				t.Fatalf("N=%d: CanSubmit true with %d marks", n, i)
			}
			_ = h.session.SetMark(context.Background(), st.ID, model.MarkAbsent)
		}
		if !h.session.CanSubmit() {
			t.Fatalf("N=%d: CanSubmit false with all marked", n)
		}
		// re-marking a student does not change the count
		if n > 0 {
			_ = h.session.SetMark(context.Background(), "1", model.MarkPresent)
			if !h.session.CanSubmit() || h.session.View().Marked != n {
				t.Fatalf("N=%d: re-mark changed completeness", n)
			}
		}
	}
}

func TestClearMark(t *testing.T) {
	h := newHarness(t, 2, at(9, 0), true, &fakeRemote{text: "Success"})
	ctx := context.Background()
	h.markAll(t, model.MarkPresent)

	if err := h.session.ClearMark(ctx, "1"); err != nil {
		t.Fatalf("ClearMark: %v", err)
	}
	if h.session.CanSubmit() {
		t.Fatal("CanSubmit true after ClearMark")
	}
	if _, ok := h.stored(t).Attendance["1"]; ok {
		t.Fatal("cleared mark still stored")
	}
	saves := h.saves
	if err := h.session.ClearMark(ctx, "1"); err != nil || h.saves != saves {
		t.Fatalf("second ClearMark err=%v saves %d->%d", err, saves, h.saves)
	}
}

func TestSetMark_TimeWindowClosed(t *testing.T) {
	h := newHarness(t, 3, at(13, 0), true, &fakeRemote{text: "Success"})

	err := h.session.SetMark(context.Background(), "1", model.MarkPresent)
	if !errors.Is(err, ErrTimeWindowClosed) {
		t.Fatalf("err = %v, want ErrTimeWindowClosed", err)
	}
	if got := Notice(err); got != "Attendance is locked after 12:00 PM." {
		t.Fatalf("Notice = %q", got)
	}
	if h.saves != 0 || h.session.View().Marked != 0 {
		t.Fatal("state changed after window violation")
	}
}

func TestSetMark_WindowRecheckedEveryCall(t *testing.T) {
	clk := at(11, 59)
	h := newHarness(t, 3, clk, true, &fakeRemote{text: "Success"})
	ctx := context.Background()

	if err := h.session.SetMark(ctx, "1", model.MarkPresent); err != nil {
		t.Fatalf("SetMark at 11:59: %v", err)
	}
	clk.now = clk.now.Add(time.Minute)
	if err := h.session.SetMark(ctx, "2", model.MarkPresent); !errors.Is(err, ErrTimeWindowClosed) {
		t.Fatalf("SetMark at 12:00 err = %v", err)
	}
	if err := h.session.ClearMark(ctx, "1"); !errors.Is(err, ErrTimeWindowClosed) {
		t.Fatalf("ClearMark at 12:00 err = %v", err)
	}
}

func TestCustomCutoff(t *testing.T) {
	clk := at(10, 30)
	s := NewSession(Config{Teacher: teacher, Students: fixtureStudents(1), Clock: clk, CutoffHour: 10})
	err := s.SetMark(context.Background(), "1", model.MarkPresent)
	if !errors.Is(err, ErrTimeWindowClosed) || Notice(err) != "Attendance is locked after 10:00 AM." {
		t.Fatalf("err = %v notice %q", err, Notice(err))
	}
}

// Pins the asymmetry: the time window guards marks but not submit.
func TestSubmit_AfterCutoffStillSucceeds(t *testing.T) {
	clk := at(9, 0)
	h := newHarness(t, 3, clk, true, &fakeRemote{text: "Success"})
	h.markAll(t, model.MarkPresent)

	clk.now = clk.now.Add(4 * time.Hour) // 13:00
	if err := h.session.SetMark(context.Background(), "1", model.MarkAbsent); !errors.Is(err, ErrTimeWindowClosed) {
		t.Fatalf("SetMark at 13:00 err = %v", err)
	}
	res, err := h.session.Submit(context.Background(), SubmitRequest{})
	if err != nil || res.Outcome != syncer.Delivered {
		t.Fatalf("Submit at 13:00 = %#v, %v", res, err)
	}
}

func TestSubmit_Incomplete(t *testing.T) {
	h := newHarness(t, 3, at(9, 0), true, &fakeRemote{text: "Success"})
	_ = h.session.SetMark(context.Background(), "1", model.MarkPresent)
	saves := h.saves

	_, err := h.session.Submit(context.Background(), SubmitRequest{Lock: true, Confirm: confirmYes})
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
	if Notice(err) != "Please mark attendance (P, A, or L) for all students." {
		t.Fatalf("Notice = %q", Notice(err))
	}
	if h.remote.calls != 0 || h.saves != saves || h.session.State() == Locked {
		t.Fatal("incomplete submit had side effects")
	}
}

func TestSubmit_DeliveredKeepsSessionMutable(t *testing.T) {
	h := newHarness(t, 5, at(9, 0), true, &fakeRemote{text: "Success: 10 rows"})
	h.markAll(t, model.MarkPresent)

	res, err := h.session.Submit(context.Background(), SubmitRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != syncer.Delivered || res.Locked {
		t.Fatalf("result = %#v", res)
	}
	if res.Notice != "Attendance synced to Google Sheets!" {
		t.Fatalf("Notice = %q", res.Notice)
	}
	if q, _ := h.store.LoadQueue(context.Background()); len(q) != 0 {
		t.Fatalf("queue len = %d, want 0", len(q))
	}
	if err := h.session.SetMark(context.Background(), "1", model.MarkLate); err != nil {
		t.Fatalf("SetMark after unlocked submit: %v", err)
	}
	if len(res.Payload.Students) != len(h.session.students) || res.Payload.Students[0].Status != model.MarkPresent {
		t.Fatalf("payload = %#v", res.Payload)
	}
	if res.Payload.Date != "2026-01-06" || res.Payload.Time != "09:00:00" || res.Payload.Teacher != "teacher5a" {
		t.Fatalf("payload header = %#v", res.Payload)
	}
}

func TestSubmit_TransportErrorQueues(t *testing.T) {
	h := newHarness(t, 3, at(9, 0), true, &fakeRemote{err: errors.New("dial tcp: no route to host")})
	h.markAll(t, model.MarkPresent)

	res, err := h.session.Submit(context.Background(), SubmitRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != syncer.Queued {
		t.Fatalf("Outcome = %v, want queued", res.Outcome)
	}
	if res.Notice != "Attendance saved offline. It will sync when you are back online." {
		t.Fatalf("Notice = %q", res.Notice)
	}
	if q, _ := h.store.LoadQueue(context.Background()); len(q) != 1 {
		t.Fatalf("queue len = %d, want 1", len(q))
	}
	if h.session.State() != FullyMarked {
		t.Fatalf("State = %v, want fully_marked", h.session.State())
	}
}

func TestSubmit_OfflineQueuesWithoutCallingRemote(t *testing.T) {
	h := newHarness(t, 2, at(9, 0), false, &fakeRemote{text: "Success"})
	h.markAll(t, model.MarkAbsent)

	res, err := h.session.Submit(context.Background(), SubmitRequest{})
	if err != nil || res.Outcome != syncer.Queued || h.remote.calls != 0 {
		t.Fatalf("res=%#v err=%v calls=%d", res, err, h.remote.calls)
	}
}

func TestSubmit_ServerRejection(t *testing.T) {
	h := newHarness(t, 3, at(9, 0), true, &fakeRemote{text: "Error: sheet missing"})
	h.markAll(t, model.MarkPresent)

	res, err := h.session.Submit(context.Background(), SubmitRequest{})
	if !errors.Is(err, syncer.ErrServerRejected) {
		t.Fatalf("err = %v, want ErrServerRejected", err)
	}
	if res.Outcome != syncer.Failed || res.Notice != "Server error. Please try again." {
		t.Fatalf("result = %#v", res)
	}
	if q, _ := h.store.LoadQueue(context.Background()); len(q) != 0 {
		t.Fatal("rejected payload was queued")
	}
}

func TestSubmit_LockRequiresConfirmation(t *testing.T) {
	h := newHarness(t, 3, at(9, 0), true, &fakeRemote{text: "Success"})
	h.markAll(t, model.MarkPresent)

	for _, confirm := range []func() bool{nil, func() bool { return false }} {
		_, err := h.session.Submit(context.Background(), SubmitRequest{Lock: true, Confirm: confirm})
		if !errors.Is(err, ErrLockNotConfirmed) {
			t.Fatalf("err = %v, want ErrLockNotConfirmed", err)
		}
	}
	if h.session.State() == Locked || h.remote.calls != 0 || h.stored(t).Locked {
		t.Fatal("unconfirmed lock had side effects")
	}
}

func TestSubmit_LockIsTerminal(t *testing.T) {
	h := newHarness(t, 3, at(9, 0), true, &fakeRemote{text: "Success"})
	h.markAll(t, model.MarkPresent)
	ctx := context.Background()

	res, err := h.session.Submit(ctx, SubmitRequest{Lock: true, Confirm: confirmYes})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Locked || res.Notice != "Attendance submitted and locked for today." {
		t.Fatalf("result = %#v", res)
	}
	if !h.stored(t).Locked {
		t.Fatal("lock not persisted")
	}

	for _, st := range fixtureStudents(5) {
		for _, m := range []model.Mark{model.MarkPresent, model.MarkAbsent, model.MarkLate, "X"} {
			if err := h.session.SetMark(ctx, st.ID, m); !errors.Is(err, ErrLocked) {
				t.Fatalf("SetMark(%s,%s) after lock err = %v, want ErrLocked", st.ID, m, err)
			}
		}
		if err := h.session.ClearMark(ctx, st.ID); !errors.Is(err, ErrLocked) {
			t.Fatalf("ClearMark(%s) after lock err = %v", st.ID, err)
		}
	}

	// lock wins over the time window
	h.clock.now = h.clock.now.Add(5 * time.Hour)
	if err := h.session.SetMark(ctx, "1", model.MarkLate); !errors.Is(err, ErrLocked) {
		t.Fatalf("SetMark after lock and cutoff err = %v, want ErrLocked", err)
	}

	// resubmitting a locked day keeps it locked and needs no confirmation
	res, err = h.session.Submit(ctx, SubmitRequest{})
	if err != nil || !res.Locked {
		t.Fatalf("resubmit = %#v, %v", res, err)
	}
}

func TestSubmit_LockedOfflineNotice(t *testing.T) {
	h := newHarness(t, 1, at(9, 0), false, &fakeRemote{})
	h.markAll(t, model.MarkLate)
	res, err := h.session.Submit(context.Background(), SubmitRequest{Lock: true, Confirm: confirmYes})
	if err != nil || res.Outcome != syncer.Queued || !res.Locked {
		t.Fatalf("res=%#v err=%v", res, err)
	}
	if res.Notice != "Attendance locked and saved offline. It will sync when you are back online." {
		t.Fatalf("Notice = %q", res.Notice)
	}
}

func TestRestore_DropsUnknownStudentsAndMarks(t *testing.T) {
	s := NewSession(Config{Teacher: teacher, Students: fixtureStudents(2), Clock: at(9, 0)})
	s.Restore(store.DailyRecord{
		Attendance: map[string]model.Mark{"1": model.MarkPresent, "2": "?", "42": model.MarkAbsent},
		Locked:     false,
	})
	v := s.View()
	if v.Marked != 1 || v.Students[0].Mark != model.MarkPresent || v.Students[1].Mark != "" {
		t.Fatalf("view = %#v", v)
	}
}

func TestStateProgression(t *testing.T) {
	h := newHarness(t, 2, at(9, 0), true, &fakeRemote{text: "Success"})
	ctx := context.Background()
	var seen []State
	inner := h.session.onTransition
	h.session.onTransition = func(ctx context.Context, tr Transition) {
		seen = append(seen, tr.To)
		inner(ctx, tr)
	}

	if h.session.State() != Unmarked {
		t.Fatalf("initial State = %v", h.session.State())
	}
	_ = h.session.SetMark(ctx, "1", model.MarkPresent)
	_ = h.session.SetMark(ctx, "2", model.MarkPresent)
	_, _ = h.session.Submit(ctx, SubmitRequest{Lock: true, Confirm: confirmYes})

	want := []State{PartiallyMarked, FullyMarked, Locked}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}

func TestNotice(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrLocked, "Attendance for today has already been submitted and locked."},
		{&syncer.RejectionError{Response: "nope"}, "Server error. Please try again."},
		{errors.New("boom"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		if got := Notice(tt.err); got != tt.want {
			t.Fatalf("Notice(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// failingKV loses every write; reads find nothing.
type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (failingKV) Set(context.Context, string, []byte) error { return errors.New("read-only file system") }
func (failingKV) Delete(context.Context, string) error { return errors.New("read-only file system") }
func (failingKV) Close() error { return nil }

func newFailingStoreSession(t *testing.T, online bool, remote *fakeRemote) *Session {
	t.Helper()
	st := store.New(failingKV{})
	quiet := log.New(io.Discard, "", 0)
	eng := syncer.New(netcheck.Static(online), remote, st)
	eng.Logger = quiet
	return NewSession(Config{
		Teacher:      teacher,
		Students:     fixtureStudents(2),
		Clock:        at(9, 0),
		Sync:         eng,
		OnTransition: AutoSave(st, quiet),
	})
}

func TestSetMark_StoreWriteFailureDoesNotFailTheFlow(t *testing.T) {
	s := newFailingStoreSession(t, true, &fakeRemote{text: "Success"})
	ctx := context.Background()

	if err := s.SetMark(ctx, "1", model.MarkPresent); err != nil {
		t.Fatalf("SetMark: %v", err)
	}
	if s.State() != PartiallyMarked {
		t.Fatalf("State = %v, want partially_marked", s.State())
	}
	if err := s.SetMark(ctx, "2", model.MarkAbsent); err != nil {
		t.Fatalf("SetMark: %v", err)
	}
	if s.State() != FullyMarked || !s.CanSubmit() {
		t.Fatalf("State = %v CanSubmit = %v", s.State(), s.CanSubmit())
	}
}

func TestSubmit_StoreWriteFailureStillDeliversAndLocks(t *testing.T) {
	remote := &fakeRemote{text: "Success"}
	s := newFailingStoreSession(t, true, remote)
	ctx := context.Background()
	_ = s.SetMark(ctx, "1", model.MarkPresent)
	_ = s.SetMark(ctx, "2", model.MarkLate)

	res, err := s.Submit(ctx, SubmitRequest{Lock: true, Confirm: confirmYes})
	if err != nil || res.Outcome != syncer.Delivered || !res.Locked {
		t.Fatalf("Submit = %#v, %v", res, err)
	}
	if remote.calls != 1 {
		t.Fatalf("remote calls = %d, want 1", remote.calls)
	}
	if s.State() != Locked {
		t.Fatalf("State = %v, want locked", s.State())
	}
	if err := s.SetMark(ctx, "1", model.MarkAbsent); !errors.Is(err, ErrLocked) {
		t.Fatalf("SetMark after lock err = %v", err)
	}
}

func TestSubmit_OfflineQueueWriteFailureGetsItsOwnNotice(t *testing.T) {
	s := newFailingStoreSession(t, false, &fakeRemote{})
	ctx := context.Background()
	_ = s.SetMark(ctx, "1", model.MarkPresent)
	_ = s.SetMark(ctx, "2", model.MarkPresent)

	res, err := s.Submit(ctx, SubmitRequest{})
	if err != nil {
		t.Fatalf("Submit err = %v, want the flow to continue", err)
	}
	if res.Outcome != syncer.Failed {
		t.Fatalf("Outcome = %v, want failed", res.Outcome)
	}
	if res.Notice != "Attendance could not be sent or saved offline. Please submit again." {
		t.Fatalf("Notice = %q", res.Notice)
	}
	if s.State() != FullyMarked {
		t.Fatalf("State = %v, marks should survive", s.State())
	}
}

func TestCutoffOutsideClockHoursUsesDefault(t *testing.T) {
	for _, hour := range []int{0, -1, 24} {
		s := NewSession(Config{Teacher: teacher, Students: fixtureStudents(1), Clock: at(11, 59), CutoffHour: hour})
		if err := s.SetMark(context.Background(), "1", model.MarkPresent); err != nil {
			t.Fatalf("CutoffHour=%d: SetMark at 11:59 err = %v", hour, err)
		}
		s = NewSession(Config{Teacher: teacher, Students: fixtureStudents(1), Clock: at(12, 0), CutoffHour: hour})
		if err := s.SetMark(context.Background(), "1", model.MarkPresent); !errors.Is(err, ErrTimeWindowClosed) {
			t.Fatalf("CutoffHour=%d: SetMark at 12:00 err = %v", hour, err)
		}
	}
}
