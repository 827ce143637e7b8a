package attendance

import (
	"errors"
	"fmt"

	"rollcall/internal/store"
	"rollcall/internal/syncer"
)

var (
	// ErrLocked is returned for any change to a day that has been locked.
	ErrLocked = errors.New("attendance is locked for today")
	// ErrTimeWindowClosed is returned by mark changes after the cutoff hour.
	ErrTimeWindowClosed = errors.New("marking window is closed")
	// ErrIncomplete is returned by Submit while some student has no mark.
	ErrIncomplete = errors.New("attendance is incomplete")
	// ErrLockNotConfirmed is returned when a locking submit was not confirmed.
	ErrLockNotConfirmed = errors.New("lock not confirmed")
	// ErrUnknownStudent is returned for a student id outside the roster.
	ErrUnknownStudent = errors.New("student not on roster")
	// ErrInvalidMark is returned for a status other than P, A or L.
	ErrInvalidMark = errors.New("invalid mark")
)

// WindowError carries the cutoff hour that closed the marking window.
type WindowError struct {
	Cutoff int
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("%v: marking closes at %02d:00", ErrTimeWindowClosed, e.Cutoff)
}

func (e *WindowError) Unwrap() error { return ErrTimeWindowClosed }

// Notice turns an error from this package or the sync engine into the single
// message shown to the teacher.
func Notice(err error) string {
	var window *WindowError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &window):
		return fmt.Sprintf("Attendance is locked after %s.", clockLabel(window.Cutoff))
	case errors.Is(err, ErrTimeWindowClosed):
		return "Attendance is locked after 12:00 PM."
	case errors.Is(err, ErrLocked):
		return "Attendance for today has already been submitted and locked."
	case errors.Is(err, ErrIncomplete):
		return "Please mark attendance (P, A, or L) for all students."
	case errors.Is(err, ErrLockNotConfirmed):
		return "Lock cancelled. Attendance was not submitted."
	case errors.Is(err, ErrUnknownStudent):
		return "That student is not on this class roster."
	case errors.Is(err, ErrInvalidMark):
		return "Choose P, A or L."
	case errors.Is(err, syncer.ErrServerRejected):
		return "Server error. Please try again."
	case errors.Is(err, syncer.ErrNotQueued):
		return "Attendance could not be sent or saved offline. Please submit again."
	case errors.Is(err, store.ErrIO):
		return "Could not read saved attendance; starting fresh."
	}
	return "Something went wrong. Please try again."
}

func submitNotice(o syncer.Outcome, locked bool) string {
	switch {
	case o == syncer.Delivered && locked:
		return "Attendance submitted and locked for today."
	case o == syncer.Delivered:
		return "Attendance synced to Google Sheets!"
	case o == syncer.Queued && locked:
		return "Attendance locked and saved offline. It will sync when you are back online."
	case o == syncer.Queued:
		return "Attendance saved offline. It will sync when you are back online."
	}
	return "Server error. Please try again."
}

func clockLabel(hour int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:00 %s", h, suffix)
}
