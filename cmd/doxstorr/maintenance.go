package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run maintenance (integrity check, index rebuild if the check fails)",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.RunMaintenance(); err != nil {
			return err
		}
		fmt.Println("maintenance completed")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.IndexUsageStatistics()
		if err != nil {
			return err
		}
		for name, s := range stats {
			fmt.Printf("%-32s access-count=%d avg-query-time=%s\n", name, s.AccessCount, s.AvgQueryTime)
		}
		return nil
	},
}

func init() {
	maintenanceCmd.AddCommand(statsCmd)
}
