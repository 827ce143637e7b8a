// Package roster serves the static class rosters and teacher accounts. The data
// is read once at startup and never changes while the process runs.
package roster

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"rollcall/internal/model"
)

//go:embed default.toml
var defaultRoster []byte

// ErrInvalidCredentials is returned when no account matches a login.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Repository is the read-only roster/credential collaborator.
type Repository interface {
	Students(className, section string) []model.Student
	Authenticate(username, password string) (model.Teacher, error)
}

type account struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Class    string `toml:"class"`
	Section  string `toml:"section"`
}

type class struct {
	Name     string          `toml:"name"`
	Section  string          `toml:"section"`
	Students []model.Student `toml:"students"`
}

type document struct {
	Teachers []account `toml:"teachers"`
	Classes  []class   `toml:"classes"`
}

// Static is an immutable in-memory Repository.
type Static struct {
	accounts []account
	classes  map[string][]model.Student
}

var _ Repository = (*Static)(nil)

// ClassKey is the roster lookup key "{class}-{section}".
func ClassKey(className, section string) string {
	return className + "-" + section
}

// Default returns the embedded roster.
func Default() (*Static, error) {
	return Parse(defaultRoster)
}

// Load reads a roster file; an empty path yields the embedded default.
func Load(path string) (*Static, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(data)
}

// Parse decodes a TOML roster document.
func Parse(data []byte) (*Static, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	s := &Static{
		accounts: doc.Teachers,
		classes:  make(map[string][]model.Student, len(doc.Classes)),
	}
	for _, c := range doc.Classes {
		key := ClassKey(c.Name, c.Section)
		if _, dup := s.classes[key]; dup {
			return nil, fmt.Errorf("parse roster: duplicate class %q", key)
		}
		seen := make(map[string]bool, len(c.Students))
		for _, st := range c.Students {
			if st.ID == "" {
				return nil, fmt.Errorf("parse roster: %s: student without id", key)
			}
			if seen[st.ID] {
				return nil, fmt.Errorf("parse roster: %s: duplicate student id %q", key, st.ID)
			}
			seen[st.ID] = true
		}
		s.classes[key] = c.Students
	}
	return s, nil
}

// Students returns a copy of the ordered roster for a class, empty when the
// class is unknown.
func (s *Static) Students(className, section string) []model.Student {
	list := s.classes[ClassKey(className, section)]
	out := make([]model.Student, len(list))
	copy(out, list)
	return out
}

// Authenticate looks up an account by exact username and password.
func (s *Static) Authenticate(username, password string) (model.Teacher, error) {
	for _, a := range s.accounts {
		if a.Username == username && a.Password == password {
			return model.Teacher{Username: a.Username, ClassName: a.Class, Section: a.Section}, nil
		}
	}
	return model.Teacher{}, ErrInvalidCredentials
}
