package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/eventhint/eventhint/config"
	"github.com/eventhint/eventhint/pkg/calsync"
	"github.com/eventhint/eventhint/pkg/crypto"
	"github.com/eventhint/eventhint/pkg/db"
	"github.com/eventhint/eventhint/pkg/extract"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/observability"
	"github.com/eventhint/eventhint/pkg/ocr"
	"github.com/eventhint/eventhint/pkg/pipeline"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/scrape"
	"github.com/eventhint/eventhint/pkg/store"
	"github.com/eventhint/eventhint/pkg/workers"
)

const (
	staleRecoveryInterval = 30 * time.Second
	cleanupInterval       = 24 * time.Hour
)

// NewWorkerCommand creates the background worker command.
func NewWorkerCommand() *cobra.Command {
	var (
		cfgFile     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background workers",
		Long: `Run the eventhint background workers.

Workers consume the Redis job queues: message processing (OCR,
extraction, merging, auto-approval), calendar sync, undo, and the
rejected-event cleanup sweep. Stale jobs whose visibility timeout
expired are periodically recovered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), cfgFile, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100", "listen address for the metrics endpoint")
	return cmd
}

func runWorker(ctx context.Context, cfgFile, metricsAddr string) error {
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

	sealer, err := crypto.NewSealer(settings.SecretKey)
	if err != nil {
		return err
	}

	eventRepo := store.NewEventRepository(pool, log)
	messageRepo := store.NewMessageRepository(pool, log)
	userRepo := store.NewUserRepository(pool, log)
	calendarRepo := store.NewCalendarRepository(pool, log)

	metrics := observability.DefaultPipelineMetrics()

	processor := pipeline.NewProcessor(
		messageRepo,
		userRepo,
		eventRepo,
		buildOCRRouter(settings, log),
		scrape.New(0, log),
		extract.NewLLMExtractor(extract.LLMConfig{
			APIKey:    settings.OpenAIAPIKey,
			Model:     settings.OpenAIModel,
			MaxTokens: settings.OpenAIMaxTokens,
			Enabled:   settings.EnableLLMFallback,
		}, log),
		jobQueues[queues.QueueSync],
		metrics,
		log,
	)

	syncer := calsync.NewSyncer(
		eventRepo,
		calendarRepo,
		calsync.NewGCalFactory(sealer, log),
		metrics,
		log,
	)

	manager := workers.NewPoolManager()
	for workerType, cfg := range workers.DefaultWorkerConfigs() {
		queue, ok := jobQueues[cfg.QueueName]
		if !ok {
			return fmt.Errorf("no queue configured for worker type %s", workerType)
		}

		var handler workers.JobHandler
		switch workerType {
		case workers.WorkerTypeSync, workers.WorkerTypeUndo:
			handler = syncer.HandleJob
		default:
			handler = processor.HandleJob
		}
		manager.RegisterPool(workers.NewPool(cfg, queue, handler, log))
	}

	manager.StartAll()
	log.Info("workers started")

	go recoverStaleJobs(ctx, jobQueues, log)
	go scheduleCleanup(ctx, jobQueues[queues.QueueCleanup], log)

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("metrics endpoint listening", logging.F("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", logging.Err(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down workers")
	manager.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsServer.Shutdown(shutdownCtx)
}

// buildOCRRouter wires the local Tesseract provider and, when enabled
// and credentialed, Google Vision as the premium escalation.
func buildOCRRouter(settings *config.Settings, log logging.Logger) *ocr.Router {
	var premium ocr.Provider
	if settings.EnableGoogleVision && settings.GoogleCloudVisionAPIKey != "" {
		vision, err := ocr.NewGoogleVision(settings.GoogleCloudVisionAPIKey, log)
		if err != nil {
			log.Warn("google vision unavailable, using local ocr only", logging.Err(err))
		} else {
			premium = vision
		}
	}
	local := ocr.NewTesseract(settings.TesseractPath, log)
	return ocr.NewRouter(local, premium, settings.OCRConfidenceThreshold, log)
}

// recoverStaleJobs periodically requeues jobs whose visibility timeout
// expired, e.g. after a worker crash.
func recoverStaleJobs(ctx context.Context, jobQueues map[string]*queues.RedisQueue, log logging.Logger) {
	ticker := time.NewTicker(staleRecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, queue := range jobQueues {
				if err := queue.RecoverStaleJobs(); err != nil {
					log.Warn("stale job recovery failed",
						logging.F("queue", name), logging.Err(err))
				}
			}
		}
	}
}

// scheduleCleanup enqueues the rejected-event retention sweep once at
// startup and then daily.
func scheduleCleanup(ctx context.Context, queue *queues.RedisQueue, log logging.Logger) {
	enqueue := func() {
		if err := queue.Enqueue(&queues.CleanupJob{Priority: queues.PriorityLow}); err != nil {
			log.Warn("failed to enqueue cleanup job", logging.Err(err))
		}
	}
	enqueue()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}
