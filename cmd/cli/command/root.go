package command

// root.go defines the root command for the komgadl CLI.
// Global flags and shared HTTP plumbing live here.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var apiURL string // global flag for the API server URL

var rootCmd = &cobra.Command{
	Use:   "komgadl",
	Short: "komgadl - download pipeline admin CLI",
	Long: `komgadl is the admin command line for the manga download pipeline.
It talks to the running api-server over its REST surface:
- Inspect and manage the download queue
- Trigger follow-list checks
- Manage database backups

Use "komgadl <command> -h" for details on a command.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "base URL of the api-server")

	rootCmd.AddCommand(downloadsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(followCmd)
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

// request performs one API call and decodes the JSON response into out (when
// out is non-nil and the response has a body).
func request(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
