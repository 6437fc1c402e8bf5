package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one proof poll cycle and print its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(configPath, false)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.poller.RunCycle(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
