package command

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/config"
	"rollcall/internal/roster"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Log in as a class teacher on this device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ros, err := roster.Load(config.Load().RosterPath)
			if err != nil {
				return err
			}
			teacher, err := ros.Authenticate(args[0], args[1])
			if err != nil {
				if errors.Is(err, roster.ErrInvalidCredentials) {
					return errors.New("Invalid Username or Password")
				}
				return err
			}

			profilePath, _ := cmd.Flags().GetString("profile")
			profile := Profile{Username: teacher.Username, ClassName: teacher.ClassName, Section: teacher.Section}
			if err := SaveProfile(profilePath, profile); err != nil {
				return err
			}

			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeJSON(cmd, teacher)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s-%s)\n", teacher.Username, teacher.ClassName, teacher.Section)
			return nil
		},
	}
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the teacher logged in on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profilePath, _ := cmd.Flags().GetString("profile")
			if err := RemoveProfile(profilePath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
