package model

import (
	"fmt"
	"strings"
)

// Mark is one student's attendance status for a day.
type Mark string

const (
	MarkPresent Mark = "P"
	MarkAbsent  Mark = "A"
	MarkLate    Mark = "L"
)

// Valid reports whether m is one of the known marks.
func (m Mark) Valid() bool {
	switch m {
	case MarkPresent, MarkAbsent, MarkLate:
		return true
	}
	return false
}

// Label returns the human readable name of the mark.
func (m Mark) Label() string {
	switch m {
	case MarkPresent:
		return "Present"
	case MarkAbsent:
		return "Absent"
	case MarkLate:
		return "Late"
	}
	return "Unmarked"
}

// ParseMark accepts the single-letter form or the full name, case-insensitive.
func ParseMark(s string) (Mark, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "present":
		return MarkPresent, nil
	case "a", "absent":
		return MarkAbsent, nil
	case "l", "late":
		return MarkLate, nil
	}
	return "", fmt.Errorf("unknown mark %q", s)
}

// Student is a roster entry. ID is unique within a class roster; RollNo is
// the display/report key.
type Student struct {
	ID     string `json:"id" toml:"id"`
	RollNo string `json:"roll_no" toml:"roll_no"`
	Name   string `json:"name" toml:"name"`
}

// Teacher is what a successful login hands to the attendance core.
type Teacher struct {
	Username  string `json:"username"`
	ClassName string `json:"class_name"`
	Section   string `json:"section"`
}

// DailyKey scopes attendance state to one class, section and calendar date.
type DailyKey string

func (k DailyKey) String() string { return string(k) }

// StudentEntry is one row of a submission.
type StudentEntry struct {
	RollNo string `json:"rollNo"`
	Name   string `json:"name"`
	Status Mark   `json:"status"`
}

// Payload is the body sent to the remote endpoint. It is built fresh for every
// submission attempt and never mutated afterwards.
type Payload struct {
	ClassName string         `json:"className"`
	Section   string         `json:"section"`
	Teacher   string         `json:"teacher"`
	Date      string         `json:"date"`
	Time      string         `json:"time"`
	Students  []StudentEntry `json:"students"`
}
