package command

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewFlushCmd creates the flush command.
func NewFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send queued offline submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := getContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			report, err := ctx.Core.Registry.Flush(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.JSON {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			switch {
			case report.Offline:
				fmt.Fprintln(out, "Offline; queued submissions were kept.")
			case report.Attempted == 0:
				fmt.Fprintln(out, "Nothing to sync.")
			default:
				fmt.Fprintf(out, "Sent %d queued submission(s): %d delivered, %d rejected, %d failed.\n",
					report.Attempted, report.Delivered, report.Rejected, report.Failed)
			}
			return nil
		},
	}
}

// NewQueueCmd creates the queue command.
func NewQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List submissions waiting for the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := getContext(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			items := ctx.Core.Engine.Pending(cmd.Context())
			if ctx.JSON {
				return writeJSON(cmd, items)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "Offline queue is empty.")
				return nil
			}
			for i, p := range items {
				fmt.Fprintf(out, "%d. %s-%s %s %s by %s (%d students)\n", i+1, p.ClassName, p.Section, p.Date, p.Time, p.Teacher, len(p.Students))
			}
			return nil
		},
	}
}

func confirmPrompt(input io.Reader, output io.Writer, prompt string) (bool, error) {
	fmt.Fprint(output, prompt)
	reader := bufio.NewReader(input)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	response := strings.TrimSpace(strings.ToLower(line))
	return response == "y" || response == "yes", nil
}
