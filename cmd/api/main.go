package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MrJamesThe3rd/almsbox/internal/auth"
	"github.com/MrJamesThe3rd/almsbox/internal/campaign"
	campaignStore "github.com/MrJamesThe3rd/almsbox/internal/campaign/store"
	"github.com/MrJamesThe3rd/almsbox/internal/config"
	"github.com/MrJamesThe3rd/almsbox/internal/database"
	"github.com/MrJamesThe3rd/almsbox/internal/event"
	"github.com/MrJamesThe3rd/almsbox/internal/export"
	almsHttp "github.com/MrJamesThe3rd/almsbox/internal/http"
	campaignHandler "github.com/MrJamesThe3rd/almsbox/internal/http/campaign"
	exportHandler "github.com/MrJamesThe3rd/almsbox/internal/http/export"
	txHandler "github.com/MrJamesThe3rd/almsbox/internal/http/transaction"
	"github.com/MrJamesThe3rd/almsbox/internal/memstore"
	"github.com/MrJamesThe3rd/almsbox/internal/metrics"
	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/proof/disk"
	proofS3 "github.com/MrJamesThe3rd/almsbox/internal/proof/s3"
	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
	txStore "github.com/MrJamesThe3rd/almsbox/internal/transaction/store"
)

type repositories struct {
	transactions transaction.Repository
	campaigns    interface {
		campaign.Repository
		transaction.CampaignReader
	}
	close func() error
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("app", cfg.App.Name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.close()

	proofs, publisher, err := openAWS(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	var (
		transactionService = transaction.NewService(repos.transactions, repos.campaigns, proofs,
			transaction.WithPublisher(publisher),
			transaction.WithObserver(metrics.NewLifecycle(reg)),
			transaction.WithLogger(logger),
		)
		campaignService = campaign.NewService(repos.campaigns, proofs)
		exportService   = export.NewService(transactionService, proofs)
	)

	var (
		transactionH = txHandler.NewHandler(transactionService, proofs, cfg.Proof.MaxUploadSize)
		campaignH    = campaignHandler.NewHandler(campaignService, tokens, cfg.Proof.MaxUploadSize)
		exportH      = exportHandler.NewHandler(exportService)
	)

	router := almsHttp.New(almsHttp.Config{
		Logger:         logger,
		Verifier:       tokens,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        metrics.NewHTTP(reg),
		Gatherer:       reg,
	}, transactionH, campaignH, exportH)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("starting server", "addr", srv.Addr, "db_driver", cfg.DB.Driver, "proof_backend", cfg.Proof.Backend)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.DB.Driver == "memory" {
		store := memstore.New()

		return &repositories{
			transactions: store,
			campaigns:    store,
			close:        func() error { return nil },
		}, nil
	}

	db, err := database.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &repositories{
		transactions: txStore.New(db),
		campaigns:    campaignStore.New(db),
		close:        db.Close,
	}, nil
}

// s3Region and sqsRegion pin a client to its own region. An empty region
// keeps the one resolved by the shared AWS config (AWS_REGION, profile).
func s3Region(region string) func(*s3.Options) {
	return func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
	}
}

func sqsRegion(region string) func(*sqs.Options) {
	return func(o *sqs.Options) {
		if region != "" {
			o.Region = region
		}
	}
}

// openAWS builds the proof store and event publisher. The AWS SDK is only
// loaded when one of them needs it.
func openAWS(ctx context.Context, cfg *config.Config) (proof.Store, event.Publisher, error) {
	var (
		proofs    proof.Store
		publisher event.Publisher = event.NoOpPublisher{}
	)

	if cfg.Proof.Backend == "disk" {
		store, err := disk.New(cfg.Proof.Dir)
		if err != nil {
			return nil, nil, err
		}

		proofs = store
	}

	if cfg.Proof.Backend != "s3" && cfg.Events.QueueURL == "" {
		return proofs, publisher, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading aws config: %w", err)
	}

	if cfg.Proof.Backend == "s3" {
		proofs = proofS3.New(s3.NewFromConfig(awsCfg, s3Region(cfg.Proof.Region)), cfg.Proof.Bucket, cfg.Proof.Prefix)
	}

	if cfg.Events.QueueURL != "" {
		publisher = event.NewSQSPublisher(sqs.NewFromConfig(awsCfg, sqsRegion(cfg.Events.Region)), cfg.Events.QueueURL)
	}

	return proofs, publisher, nil
}
