package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eventhint/eventhint/pkg/auth"
	"github.com/eventhint/eventhint/pkg/crypto"
	"github.com/eventhint/eventhint/pkg/db"
	"github.com/eventhint/eventhint/pkg/httpapi"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/store"
)

// NewServeCommand creates the API server command.
func NewServeCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the eventhint HTTP API server.

The server exposes uploads, the event approval queue, calendar
management, Google OAuth login, and Prometheus metrics. Background
processing runs separately; see 'eventhint worker'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgFile)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	return cmd
}

func runServe(ctx context.Context, cfgFile string) error {
	settings, err := loadSettings(cfgFile)
	if err != nil {
		return err
	}
	if settings.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	log := newServiceLogger(settings)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connectDatabase(ctx, settings)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	redisClient, err := connectRedis(ctx, settings)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	jobQueues := buildQueues(redisClient)

	issuer, err := auth.NewTokenIssuer(settings.SecretKey, settings.AccessTokenExpireMinutes)
	if err != nil {
		return err
	}
	sealer, err := crypto.NewSealer(settings.SecretKey)
	if err != nil {
		return err
	}

	server := httpapi.NewServer(
		settings,
		store.NewEventRepository(pool, log),
		store.NewMessageRepository(pool, log),
		store.NewUserRepository(pool, log),
		store.NewCalendarRepository(pool, log),
		jobQueues[queues.QueueProcess],
		jobQueues[queues.QueueSync],
		jobQueues[queues.QueueUndo],
		issuer,
		sealer,
		log,
	)

	httpServer := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api server listening", logging.F("addr", settings.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
