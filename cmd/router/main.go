package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/godbolt/ce-router/cmd/mainconfig"
	"github.com/godbolt/ce-router/internal/config"
	"github.com/godbolt/ce-router/internal/correlator"
	"github.com/godbolt/ce-router/internal/eventbus"
	"github.com/godbolt/ce-router/internal/forwarder"
	"github.com/godbolt/ce-router/internal/httpapi"
	"github.com/godbolt/ce-router/internal/metrics"
	"github.com/godbolt/ce-router/internal/objectstore"
	"github.com/godbolt/ce-router/internal/queueing"
	"github.com/godbolt/ce-router/internal/routing"
	"github.com/godbolt/ce-router/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting ce-router",
		"env", cfg.Environment,
		"port", cfg.Port,
	)

	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	awsCfg, err := mainconfig.LoadAWSConfig(appCtx, cfg)
	if err != nil {
		logger.Error("failed to load AWS configuration", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	ssmClient := ssm.NewFromConfig(awsCfg)
	sqsClient := sqs.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	})

	routingStore := routing.NewStore(dynamoClient, cfg.RoutingTableName)
	colorResolver := routing.NewColorResolver(ssmClient)
	resolver := routing.NewResolver(
		routingStore,
		colorResolver,
		string(cfg.Environment),
		cfg.QueueURLBlueByEnv,
		cfg.QueueURLGreenByEnv,
		logger,
		m,
	)

	overflowStore := objectstore.NewStore(s3Client, cfg.S3OverflowBucket)
	resultsStore := objectstore.NewStore(s3Client, cfg.CompilationResultsBucket)

	queue := queueing.NewQueue(sqsClient)
	submitter := queueing.NewSubmitter(
		queue,
		overflowStore,
		cfg.SQSMaxMessageSize,
		cfg.S3OverflowBucket,
		cfg.S3OverflowPrefix,
		string(cfg.Environment),
		logger,
		m,
	)

	bus := eventbus.New(cfg.EventBusURL, eventbus.Config{
		ReconnectInterval:    cfg.EventBusReconnectInterval,
		MaxReconnectAttempts: cfg.EventBusMaxReconnectAttempts,
		PingInterval:         cfg.EventBusPingInterval,
	}, logger, m)
	go bus.Run(appCtx)

	corr := correlator.New(bus, resultsStore, cfg.CompilationResultsPrefix, logger, m)
	go corr.Run(appCtx)
	go pumpBusFrames(appCtx, bus, corr, logger)

	fwd := forwarder.New(logger)

	handler := httpapi.New(&httpapi.Config{
		Logger:              logger,
		Resolver:            resolver,
		Submitter:           submitter,
		Correlator:          corr,
		Forwarder:           fwd,
		BusState:            bus,
		Environment:         string(cfg.Environment),
		DefaultTimeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		SubscribeSettleWait: config.SubscribeSettleDelay,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.TimeoutSeconds+15) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
			metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler}
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	bus.Close()
	logger.Info("server stopped")
}

// pumpBusFrames hands every decoded event-bus frame to the correlator
// until ctx is cancelled or the bus's messages channel closes.
func pumpBusFrames(ctx context.Context, bus *eventbus.Bus, corr *correlator.Correlator, logger *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-bus.Messages():
			if !ok {
				return
			}
			corr.OnMessage(frame)
		case err, ok := <-bus.Errors():
			if !ok {
				continue
			}
			logger.Warn("eventbus: frame error", "error", err)
		}
	}
}
