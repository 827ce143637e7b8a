package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"rollcall/internal/model"
)

// Profile is the logged-in teacher on this device.
type Profile struct {
	Username  string `toml:"username"`
	ClassName string `toml:"class"`
	Section   string `toml:"section"`
}

// Teacher converts the profile for the attendance core.
func (p Profile) Teacher() model.Teacher {
	return model.Teacher{Username: p.Username, ClassName: p.ClassName, Section: p.Section}
}

func (p Profile) valid() bool {
	return strings.TrimSpace(p.Username) != "" && strings.TrimSpace(p.ClassName) != ""
}

// DefaultProfilePath returns the profile file under the user config dir.
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".rollcall", "profile.toml")
	}
	return filepath.Join(dir, "rollcall", "profile.toml")
}

// LoadProfile reads the profile. A missing or unreadable file means nobody is
// logged in.
func LoadProfile(path string) (Profile, bool) {
	if strings.TrimSpace(path) == "" {
		path = DefaultProfilePath()
	}
	file, err := os.Open(path)
	if err != nil {
		return Profile{}, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return Profile{}, false
	}
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil || !p.valid() {
		return Profile{}, false
	}
	return p, true
}

// SaveProfile writes the profile, creating directories as needed.
func SaveProfile(path string, p Profile) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultProfilePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// RemoveProfile logs the device out. Removing a missing profile is not an error.
func RemoveProfile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultProfilePath()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove profile: %w", err)
	}
	return nil
}
