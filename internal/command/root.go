// Package command implements the rollcall device CLI.
package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "rollcall"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Daily class attendance with offline sync",
		Long:          "rollcall records one attendance mark per student per day and syncs it to the school endpoint, queuing submissions while offline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("profile", "", "profile file (default: user config dir)")
	cmd.PersistentFlags().String("at", "", "act as if the time were this (15:04 or 2006-01-02T15:04)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log sync activity to stderr")

	cmd.AddCommand(
		NewLoginCmd(),
		NewLogoutCmd(),
		NewShowCmd(),
		NewMarkCmd(),
		NewUnmarkCmd(),
		NewSubmitCmd(),
		NewFlushCmd(),
		NewQueueCmd(),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd(Version).Execute()
}
