package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/api"
	"github.com/dvloznov/receipt-tracker/internal/api/handlers"
	"github.com/dvloznov/receipt-tracker/internal/archive"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/extractor"
	"github.com/dvloznov/receipt-tracker/internal/identity"
	infraBQ "github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	firestoredb "github.com/dvloznov/receipt-tracker/internal/infra/firestore"
	jobsmem "github.com/dvloznov/receipt-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/notify"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/push"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/dvloznov/receipt-tracker/internal/store/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/tokens"
	"google.golang.org/api/option"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	log := logger.NewWithOptions(logger.Options{
		Level:   cfg.LogLevel,
		JSON:    cfg.Production(),
		Service: "receipt-tracker-api",
	})
	ctx := logger.WithContext(context.Background(), log)

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	// Document store
	var repo store.Repository
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory document store - data is lost on restart")
		repo = inmemory.NewStore()
	default:
		fs, err := firestoredb.NewRepository(ctx, cfg.ProjectID, cfg.FirestoreDatabase, clientOpts...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Firestore repository")
		}
		repo = fs
	}
	defer repo.Close()

	// Push messaging
	var (
		issuer   tokens.Issuer   = tokens.Passthrough
		notifier notify.Notifier = notify.NewLogNotifier(log)
	)
	if cfg.PushEnabled {
		messenger, err := push.NewMessenger(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create FCM client")
		}
		issuer = push.NewIssuer(messenger)
		notifier = notify.NewPushNotifier(push.NewSender(messenger))
	} else {
		log.Warn().Msg("Push disabled - notifications are logged and tokens are not validated")
	}
	notifications := notify.NewService(notifier, cfg.NotificationIcon)

	// Optional side outputs
	var reconcileOpts []pipeline.Option
	if cfg.ArchiveBucket != "" {
		arch, err := archive.New(ctx, cfg.ArchiveBucket, clientOpts...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create receipt archive")
		}
		defer arch.Close()
		reconcileOpts = append(reconcileOpts, pipeline.WithArchiver(arch))
	}
	if cfg.ExportDataset != "" {
		exporter, err := infraBQ.NewExporter(ctx, cfg.ProjectID, cfg.ExportDataset, clientOpts...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery exporter")
		}
		defer exporter.Close()
		reconcileOpts = append(reconcileOpts, pipeline.WithExporter(exporter))
	}

	reconciler := pipeline.NewReconciler(repo, tokens.NewManager(issuer, tokens.WithThreshold(cfg.TokenStaleAfter)), reconcileOpts...)

	// Job infrastructure
	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(cfg.QueueBuffer, jobStore,
		jobsmem.WithWorkers(cfg.QueueWorkers),
		jobsmem.WithMaxRetries(cfg.JobMaxRetries),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.QueueWorkers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, pipeline.NewJobHandler(repo, reconciler, notifications)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	resolve := func(accessToken string) identity.Resolver {
		return identity.WithTimeout(identity.NewGoogleResolver(accessToken, clientOpts...), cfg.IdentityTimeout)
	}
	httpClient := &http.Client{Timeout: cfg.IdentityTimeout}
	revoke := func(ctx context.Context, accessToken string) error {
		return identity.Revoke(ctx, httpClient, accessToken)
	}

	router := api.NewRouter(api.Handlers{
		Receipts: handlers.NewReceiptsHandler(extractor.Default(), repo, jobQueue, resolve, log),
		Users:    handlers.NewUsersHandler(repo, resolve, issuer, revoke, log),
		Push:     handlers.NewPushHandler(notifications, repo, resolve, log),
		Jobs:     handlers.NewJobsHandler(jobStore, log),
	}, log)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Str("store", cfg.StoreBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()
	notifications.Wait()

	log.Info().Msg("Server exited")
}
