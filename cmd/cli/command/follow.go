package command

import (
	"fmt"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"komgadl/internal/api/dto"
)

var followIntervalHours int

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Manage the follow-list scheduler",
}

var followStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the follow scheduler configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg dto.SchedulerConfigResponse
		if err := request(http.MethodGet, "/api/v1/downloads/scheduler", nil, &cfg); err != nil {
			return err
		}

		state := color.RedString("disabled")
		if cfg.Enabled {
			state = color.GreenString("enabled")
		}
		fmt.Printf("follow checks: %s, every %d hours\n", state, cfg.IntervalHours)
		if cfg.LastCheckTime != nil {
			fmt.Printf("last check: %s\n", cfg.LastCheckTime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var followEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable periodic follow checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := dto.SchedulerConfigRequest{Enabled: true, IntervalHours: followIntervalHours}
		if err := request(http.MethodPost, "/api/v1/downloads/scheduler", body, nil); err != nil {
			return err
		}
		color.Green("follow checks enabled (every %d hours)", followIntervalHours)
		return nil
	},
}

var followDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable periodic follow checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		var current dto.SchedulerConfigResponse
		if err := request(http.MethodGet, "/api/v1/downloads/scheduler", nil, &current); err != nil {
			return err
		}
		interval := current.IntervalHours
		if interval < 1 {
			interval = 12
		}

		body := dto.SchedulerConfigRequest{Enabled: false, IntervalHours: interval}
		if err := request(http.MethodPost, "/api/v1/downloads/scheduler", body, nil); err != nil {
			return err
		}
		color.Yellow("follow checks disabled")
		return nil
	},
}

var followCheckNowCmd = &cobra.Command{
	Use:   "check-now <libraryId>",
	Short: "Run a library's follow-list check immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/downloads/follow-txt/" + args[0] + "/check-now"
		if err := request(http.MethodPost, path, nil, nil); err != nil {
			return err
		}
		color.Green("check queued for library %s", args[0])
		return nil
	},
}

func init() {
	followEnableCmd.Flags().IntVar(&followIntervalHours, "interval-hours", 12, "hours between checks")

	followCmd.AddCommand(followStatusCmd)
	followCmd.AddCommand(followEnableCmd)
	followCmd.AddCommand(followDisableCmd)
	followCmd.AddCommand(followCheckNowCmd)
}
