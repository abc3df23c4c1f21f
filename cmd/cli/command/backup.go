package command

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"komgadl/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database backups",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var backups []backup.Info
		if err := request(http.MethodGet, "/api/v1/backup", nil, &backups); err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("no backups")
			return nil
		}
		for _, b := range backups {
			fmt.Printf("%s  %10d bytes  %s\n",
				b.CreatedDate.Format("2006-01-02 15:04:05"), b.SizeBytes, b.FileName)
		}
		return nil
	},
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		var info backup.Info
		if err := request(http.MethodPost, "/api/v1/backup", nil, &info); err != nil {
			return err
		}
		color.Green("created %s (%d bytes)", info.FileName, info.SizeBytes)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <fileName>",
	Short: "Restore a backup (restarts the server)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result backup.RestoreResult
		if err := request(http.MethodPost, "/api/v1/backup/restore/"+args[0], nil, &result); err != nil {
			return err
		}
		color.Yellow("%s", result.Message)
		return nil
	},
}

var backupCleanCmd = &cobra.Command{
	Use:   "clean <keep>",
	Short: "Delete all but the newest <keep> backups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("keep must be an integer")
		}

		var resp struct {
			DeletedCount int `json:"deletedCount"`
		}
		if err := request(http.MethodPost, fmt.Sprintf("/api/v1/backup/clean?keep=%d", keep), nil, &resp); err != nil {
			return err
		}
		fmt.Printf("deleted %d backups\n", resp.DeletedCount)
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupCleanCmd)
}
