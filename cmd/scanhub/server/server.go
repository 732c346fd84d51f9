package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"scanhub/api/routes"
	"scanhub/internal/config"
	"scanhub/internal/dao"
	"scanhub/internal/database"
	gh "scanhub/internal/github"
	"scanhub/internal/notification"
	"scanhub/internal/notifier"
	"scanhub/internal/services"
	"scanhub/pkg/logger"
)

type ServerOpts struct {
	Port int
}

func NewServerCommand() *cobra.Command {
	serverOpts := &ServerOpts{}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the scanhub server",
		Long:  `Start the scanhub server: REST API, WebSocket live updates and the scan dashboard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(serverOpts)
		},
	}

	serverCmd.Flags().IntVarP(&serverOpts.Port, "port", "p", 0, "Port to run the server on (overrides PORT)")

	return serverCmd
}

func run(opts *ServerOpts) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log.SetLevel(cfg.ParsedLogLevel())

	port := cfg.Port
	if opts.Port != 0 {
		port = opts.Port
	}

	database.InitDB(cfg)

	appLogger := logger.NewLogger(cfg.ParsedLogLevel())
	hub := notifier.NewHub(appLogger)

	ghClient := gh.NewClient(cfg.GithubToken, cfg.GithubActionsOwner, cfg.GithubActionsRepo,
		cfg.WorkflowFile, cfg.WorkflowRef, appLogger)

	var terminal services.TerminalNotifier
	if cfg.DiscordToken != "" {
		discordClient, err := notification.NewNotificationClient(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			log.Warnf("Failed to initialize Discord client: %v", err)
		} else {
			defer discordClient.Close()
			terminal = discordClient
			log.Info("Discord notifications enabled")
		}
	} else {
		log.Info("DISCORD_TOKEN not set - Discord notifications disabled")
	}

	scanService := services.NewScanService(buildServiceOptions(cfg, hub, ghClient, terminal, appLogger))

	router := routes.InitRouter(database.DB, scanService, hub)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Infof("Server listening on :%d", port)
		errChan <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigChan:
		log.Infof("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}

	log.Info("Server stopped")
	return nil
}

func buildServiceOptions(cfg *config.Config, hub *notifier.Hub, ghClient *gh.Client,
	terminal services.TerminalNotifier, appLogger *logger.Logger) services.ScanServiceOptions {

	depths, err := services.LoadDepthProfiles()
	if err != nil {
		log.Fatalf("Failed to load scan depth profiles: %v", err)
	}

	return services.ScanServiceOptions{
		ScanDAO:     dao.NewScanDAO(database.DB),
		StatDAO:     dao.NewStatDAO(database.DB),
		Verifier:    ghClient,
		Dispatcher:  ghClient,
		Broadcaster: hub,
		Terminal:    terminal,
		Depths:      depths,
		CallbackURL: cfg.CallbackBaseURL + "/api/scans/callback",
		Logger:      appLogger,
	}
}
