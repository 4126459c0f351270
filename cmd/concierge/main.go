package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/api"
	"github.com/MikeSquared-Agency/concierge/internal/bot"
	"github.com/MikeSquared-Agency/concierge/internal/config"
	"github.com/MikeSquared-Agency/concierge/internal/dialog"
	"github.com/MikeSquared-Agency/concierge/internal/foursquare"
	"github.com/MikeSquared-Agency/concierge/internal/hermes"
	"github.com/MikeSquared-Agency/concierge/internal/slack"
	"github.com/MikeSquared-Agency/concierge/internal/store"
	"github.com/MikeSquared-Agency/concierge/internal/transcript"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "concierge",
		Short:         "Relay chat messages to a dialog service and keep conversation state",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the WebSocket, HTTP and Slack front ends",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context())
			},
		},
	)
	return root
}

func runMigrate(ctx context.Context) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migration failed", "error", err)
		return err
	}
	slog.Info("schema up to date")
	return nil
}

// backend is what the bot needs from persistence. Both store.Store and
// store.Memory provide it.
type backend interface {
	bot.UserDirectory
	bot.ConversationLog
	transcript.Appender
	api.TranscriptReader
}

func runServe(parent context.Context) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("concierge starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	var db backend
	if cfg.DatabaseURL != "" {
		pg, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			return err
		}
		db = pg
		slog.Info("database connected")
	} else {
		db = store.NewMemory()
		slog.Warn("DATABASE_URL not set, keeping users and transcripts in memory")
	}

	// Dialog service
	if cfg.DialogWorkspaceID == "" {
		slog.Error("DIALOG_WORKSPACE_ID is required")
		return fmt.Errorf("DIALOG_WORKSPACE_ID is required")
	}
	ds := dialog.NewClient(cfg.DialogURL, cfg.DialogUsername, cfg.DialogPassword, cfg.DialogWorkspaceID, cfg.DialogVersion)
	slog.Info("dialog client ready", "url", cfg.DialogURL, "workspace", cfg.DialogWorkspaceID)

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		return err
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Transcript writer
	writer := transcript.NewWriter(db, slog.Default(),
		transcript.WithPublisher(hermesClient),
		transcript.WithWriteTimeout(time.Duration(cfg.LogWriteTimeout)*time.Second),
	)

	// Bot
	b := bot.New(db, db, ds, writer, slog.Default())
	var actions []string
	if cfg.FoursquareID != "" && cfg.FoursquareSecret != "" {
		venues := foursquare.NewClient(cfg.FoursquareID, cfg.FoursquareSecret)
		b.Handle(bot.ActionFindDoctorLocation, bot.FindDoctorLocation(venues, slog.Default()))
		actions = append(actions, bot.ActionFindDoctorLocation)
	} else {
		slog.Warn("foursquare not configured, findDoctorLocation falls back to the generic reply")
	}

	// Slack (optional, replies go out via chat.postMessage)
	slackEnabled := cfg.SlackBotToken != ""
	if slackEnabled {
		poster := slack.NewPoster(cfg.SlackBotToken, slog.Default())
		if err := hermesClient.Subscribe(slack.SubjectMessage, b.SlackHandler(poster)); err != nil {
			slog.Error("failed to subscribe to slack messages", "error", err)
			return err
		}
		slog.Info("slack bot ready")
	} else {
		slog.Warn("slack not configured, running WebSocket and HTTP only")
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, b, slog.Default(),
		api.WithStaticDir(cfg.StaticDir),
		api.WithPendingDialogs(writer.Pending),
		api.WithNATSStatus(hermesClient.Connected),
		api.WithTranscripts(db),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown incomplete", "error", err)
		}
		if err := writer.Flush(shutdownCtx); err != nil {
			slog.Warn("dialog log not fully flushed", "pending", writer.Pending(), "error", err)
		}
		return nil
	})

	// Announce registration
	if err := hermesClient.Publish(hermes.SubjectRegistered, hermes.Registration{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Port:      cfg.Port,
		Actions:   actions,
		Slack:     slackEnabled,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("concierge ready", "port", cfg.Port)

	if err := g.Wait(); err != nil {
		slog.Error("HTTP server error", "error", err)
		return err
	}
	slog.Info("concierge stopped")
	return nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
