package main

import (
	"github.com/spf13/cobra"

	"skinscan-backend/internal/bootstrap"
)

func newQuotaCmd(build appBuilder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or reset a clinic's monthly scan quota",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <clinicId>",
			Short: "Print current usage",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, build, func(app *bootstrap.App) error {
					u, err := app.Quota.Usage(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), u)
				})
			},
		},
		&cobra.Command{
			Use:   "reset <clinicId>",
			Short: "Zero the current period's usage",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, build, func(app *bootstrap.App) error {
					u, err := app.Quota.Reset(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), u)
				})
			},
		},
	)
	return cmd
}
