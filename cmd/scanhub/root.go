package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"scanhub/cmd/scanhub/server"
	"scanhub/cmd/scanhub/trigger"
)

func Execute() error {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "scanhub",
		Short: "Orchestration server for GitHub-hosted security scans",
		Long:  `Scanhub dispatches security-scan workflows for GitHub repositories, tracks their status and serves a live dashboard over scan history`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(server.NewServerCommand())
	rootCmd.AddCommand(trigger.NewTriggerCommand())
	return rootCmd.ExecuteContext(context.Background())
}
