package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newNotifyGraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-grace",
		Short: "Send grace-period warnings once and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.grace.Run(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			return a.migrate(cmd.Context())
		},
	}
}
