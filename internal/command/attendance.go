package command

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rollcall/internal/attendance"
	"rollcall/internal/model"
)

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show today's attendance for your class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := getContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			s := ctx.Core.Registry.Open(cmd.Context(), ctx.Teacher)
			return printView(cmd, ctx, s.View())
		},
	}
}

// NewMarkCmd creates the mark command.
func NewMarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark [<student> <P|A|L>]...",
		Short: "Mark students present, absent or late",
		Long:  "Mark one or more students by roll number or id, e.g. `rollcall mark 501 P 502 L`. Use --all to give every unmarked student the same mark.",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetString("all")
			if len(args)%2 != 0 {
				return fmt.Errorf("expected <student> <mark> pairs, got %d arguments", len(args))
			}
			if len(args) == 0 && all == "" {
				return fmt.Errorf("nothing to mark")
			}

			ctx, err := getContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			s := ctx.Core.Registry.Session(cmd.Context(), ctx.Teacher)
			view := s.View()
			for i := 0; i < len(args); i += 2 {
				id, err := resolveStudent(view, args[i])
				if err != nil {
					return err
				}
				mark, err := model.ParseMark(args[i+1])
				if err != nil {
					return noticeError{attendance.ErrInvalidMark}
				}
				if err := s.SetMark(cmd.Context(), id, mark); err != nil {
					return noticeError{err}
				}
			}
			if all != "" {
				mark, err := model.ParseMark(all)
				if err != nil {
					return noticeError{attendance.ErrInvalidMark}
				}
				for _, row := range s.View().Students {
					if row.Mark != "" {
						continue
					}
					if err := s.SetMark(cmd.Context(), row.ID, mark); err != nil {
						return noticeError{err}
					}
				}
			}
			return printView(cmd, ctx, s.View())
		},
	}
	cmd.Flags().String("all", "", "mark every unmarked student with this status")
	return cmd
}

// NewUnmarkCmd creates the unmark command.
func NewUnmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmark <student>...",
		Short: "Clear the mark of one or more students",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := getContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			s := ctx.Core.Registry.Session(cmd.Context(), ctx.Teacher)
			view := s.View()
			for _, ref := range args {
				id, err := resolveStudent(view, ref)
				if err != nil {
					return err
				}
				if err := s.ClearMark(cmd.Context(), id); err != nil {
					return noticeError{err}
				}
			}
			return printView(cmd, ctx, s.View())
		},
	}
}

// NewSubmitCmd creates the submit command.
func NewSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit today's attendance",
		Long:  "Submit today's attendance to the endpoint, or queue it while offline. With --lock the day can no longer be edited.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, _ := cmd.Flags().GetBool("lock")
			yes, _ := cmd.Flags().GetBool("yes")

			ctx, err := getContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			s := ctx.Core.Registry.Open(cmd.Context(), ctx.Teacher)
			res, err := s.Submit(cmd.Context(), attendance.SubmitRequest{
				Lock: lock,
				Confirm: func() bool {
					if yes {
						return true
					}
					prompt := "Lock today's attendance? Marks cannot be changed afterwards. [y/N]: "
					ok, err := confirmPrompt(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
					return err == nil && ok
				},
			})
			if err != nil {
				return noticeError{err}
			}
			if ctx.JSON {
				return writeJSON(cmd, map[string]any{
					"outcome": res.Outcome.String(),
					"locked":  res.Locked,
					"notice":  res.Notice,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Notice)
			return nil
		},
	}
	cmd.Flags().Bool("lock", false, "lock the day after submitting")
	cmd.Flags().BoolP("yes", "y", false, "do not ask before locking")
	return cmd
}

// resolveStudent accepts a roll number or a student id.
func resolveStudent(v attendance.View, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	for _, row := range v.Students {
		if row.RollNo == ref {
			return row.ID, nil
		}
	}
	for _, row := range v.Students {
		if row.ID == ref {
			return row.ID, nil
		}
	}
	return "", noticeError{attendance.ErrUnknownStudent}
}

func printView(cmd *cobra.Command, ctx *cmdContext, v attendance.View) error {
	if ctx.JSON {
		return writeJSON(cmd, v)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s-%s  %s  (%s, %d/%d marked)\n", v.Teacher.ClassName, v.Teacher.Section, v.Date, v.State, v.Marked, v.Total)
	writeRows(out, v.Students)
	return nil
}

func writeRows(out io.Writer, rows []attendance.StudentRow) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLL\tNAME\tSTATUS")
	for _, row := range rows {
		status := "-"
		if row.Mark != "" {
			status = row.Mark.Label()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.RollNo, row.Name, status)
	}
	_ = tw.Flush()
}
