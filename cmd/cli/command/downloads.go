package command

import (
	"fmt"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"komgadl/internal/api/dto"
)

var (
	addLibraryID string
	addTitle     string
	addPriority  int
	listStatus   string
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Manage the download queue",
}

var downloadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/downloads"
		if listStatus != "" {
			path += "?status=" + listStatus
		}

		var items []dto.DownloadResponse
		if err := request(http.MethodGet, path, nil, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		for _, item := range items {
			fmt.Printf("%s  %-11s %3d%%  p%d  %s\n",
				item.ID, colorStatus(item.Status), item.ProgressPercent, item.Priority, item.Title)
			if item.ErrorMessage != nil {
				color.Red("    error: %s", *item.ErrorMessage)
			}
		}
		return nil
	},
}

var downloadsAddCmd = &cobra.Command{
	Use:   "add <sourceUrl>",
	Short: "Queue a new download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{
			"sourceUrl": args[0],
			"priority":  addPriority,
		}
		if addLibraryID != "" {
			body["libraryId"] = addLibraryID
		}
		if addTitle != "" {
			body["title"] = addTitle
		}

		var created dto.DownloadResponse
		if err := request(http.MethodPost, "/api/v1/downloads", body, &created); err != nil {
			return err
		}
		color.Green("queued %s (%s)", created.Title, created.ID)
		return nil
	},
}

var downloadsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending or running download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := request(http.MethodPost, "/api/v1/downloads/"+args[0]+"/action",
			map[string]string{"action": "cancel"}, nil)
		if err != nil {
			return err
		}
		color.Yellow("cancelled %s", args[0])
		return nil
	},
}

var downloadsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry a failed download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := request(http.MethodPost, "/api/v1/downloads/"+args[0]+"/action",
			map[string]string{"action": "retry"}, nil)
		if err != nil {
			return err
		}
		color.Green("retry queued for %s", args[0])
		return nil
	},
}

var downloadsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a download entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := request(http.MethodDelete, "/api/v1/downloads/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var downloadsClearCmd = &cobra.Command{
	Use:   "clear <completed|failed|cancelled|pending>",
	Short: "Bulk-delete entries by status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp dto.ClearResponse
		if err := request(http.MethodDelete, "/api/v1/downloads/clear/"+args[0], nil, &resp); err != nil {
			return err
		}
		fmt.Printf("cleared %d %s entries\n", resp.DeletedCount, resp.Status)
		return nil
	},
}

func colorStatus(status string) string {
	switch status {
	case "COMPLETED":
		return color.GreenString("%-11s", status)
	case "FAILED":
		return color.RedString("%-11s", status)
	case "DOWNLOADING":
		return color.CyanString("%-11s", status)
	case "CANCELLED":
		return color.YellowString("%-11s", status)
	default:
		return fmt.Sprintf("%-11s", status)
	}
}

func init() {
	downloadsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	downloadsAddCmd.Flags().StringVar(&addLibraryID, "library", "", "target library id")
	downloadsAddCmd.Flags().StringVar(&addTitle, "title", "", "display title")
	downloadsAddCmd.Flags().IntVar(&addPriority, "priority", 5, "queue priority (lower runs sooner)")

	downloadsCmd.AddCommand(downloadsListCmd)
	downloadsCmd.AddCommand(downloadsAddCmd)
	downloadsCmd.AddCommand(downloadsCancelCmd)
	downloadsCmd.AddCommand(downloadsRetryCmd)
	downloadsCmd.AddCommand(downloadsDeleteCmd)
	downloadsCmd.AddCommand(downloadsClearCmd)
}
