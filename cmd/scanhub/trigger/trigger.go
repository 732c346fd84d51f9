package trigger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type TriggerOpts struct {
	Server string
	Repo   string
	Depth  string
}

// NewTriggerCommand returns a command that asks a running scanhub server to
// start a scan, for use from CI or a shell.
func NewTriggerCommand() *cobra.Command {
	opts := &TriggerOpts{}

	triggerCmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a scan on a running scanhub server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(opts)
		},
	}

	triggerCmd.Flags().StringVarP(&opts.Server, "server", "s", "http://localhost:8080", "Base URL of the scanhub server")
	triggerCmd.Flags().StringVarP(&opts.Repo, "repo", "r", "", "Repository URL to scan (required)")
	triggerCmd.Flags().StringVarP(&opts.Depth, "depth", "d", "", "Scan depth (quick, standard, deep)")

	if err := triggerCmd.MarkFlagRequired("repo"); err != nil {
		log.Fatalf("Failed to mark repo flag as required: %v", err)
	}

	return triggerCmd
}

func run(opts *TriggerOpts) error {
	payload, err := json.Marshal(map[string]string{
		"repository_url": opts.Repo,
		"scan_depth":     opts.Depth,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(opts.Server+"/api/scans", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Scan struct {
			ID         string `json:"id"`
			Repository string `json:"repository"`
			Status     string `json:"status"`
		} `json:"scan"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return err
	}

	log.Infof("Scan %s started for %s (status: %s)", parsed.Scan.ID, parsed.Scan.Repository, parsed.Scan.Status)
	return nil
}
