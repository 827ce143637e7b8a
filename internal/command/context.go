package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/app"
	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/model"
)

var errNotLoggedIn = errors.New("not logged in; run `rollcall login <username> <password>`")

// cmdContext is what every command beyond login works with.
type cmdContext struct {
	Config      config.App
	Core        *app.Core
	Teacher     model.Teacher
	ProfilePath string
	JSON        bool
}

func (c *cmdContext) Close() {
	_ = c.Core.Close()
}

// getContext loads config and the profile, then wires the core.
func getContext(cmd *cobra.Command) (*cmdContext, error) {
	profilePath, _ := cmd.Flags().GetString("profile")
	profile, ok := LoadProfile(profilePath)
	if !ok {
		return nil, errNotLoggedIn
	}
	cfg := config.Load()
	core, err := buildCore(cmd, cfg)
	if err != nil {
		return nil, err
	}
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &cmdContext{
		Config:      cfg,
		Core:        core,
		Teacher:     profile.Teacher(),
		ProfilePath: profilePath,
		JSON:        jsonMode,
	}, nil
}

func buildCore(cmd *cobra.Command, cfg config.App) (*app.Core, error) {
	logger := log.New(io.Discard, "", 0)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger = log.New(cmd.ErrOrStderr(), AppName+": ", log.LstdFlags)
	}

	var clk clock.Clock
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		loc := cfg.Location
		if loc == nil {
			loc = time.Local
		}
		ts, err := parseAt(at, loc, time.Now())
		if err != nil {
			return nil, err
		}
		clk = clock.Fixed(ts)
	}
	return app.Build(cfg, clk, logger)
}

// parseAt accepts a time of day (applied to today) or a full local timestamp.
func parseAt(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if ts, err := time.ParseInLocation("2006-01-02T15:04", value, loc); err == nil {
		return ts, nil
	}
	if tod, err := time.ParseInLocation("15:04", value, loc); err == nil {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("invalid --at %q: want 15:04 or 2006-01-02T15:04", value)
}

// noticeError shows the teacher-facing notice while keeping the cause for errors.Is.
type noticeError struct {
	err error
}

func (e noticeError) Error() string { return attendance.Notice(e.err) }
func (e noticeError) Unwrap() error { return e.err }

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
