package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/blobstore"
	"milestone-service/internal/config"
	"milestone-service/internal/handler"
	"milestone-service/internal/httpserver"
	"milestone-service/internal/mqhandler"
	"milestone-service/internal/repository"
	"milestone-service/internal/service/document"
	"milestone-service/internal/service/milestone"
	"milestone-service/internal/service/notification"
	"milestone-service/internal/service/payment"
	"milestone-service/pkg/db"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/mq"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/redis"
	"milestone-service/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting milestone-service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (notification dedupe)
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// Blob store
	blobs, err := blobstore.NewMinioStore(cfg.Blob, log)
	if err != nil {
		log.Fatal("Failed to init blob store", zap.Error(err))
	}
	if err := blobs.EnsureBucket(context.Background()); err != nil {
		log.Fatal("Failed to ensure blob bucket", zap.Error(err))
	}

	// Repositories
	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	documentRepo := repository.NewDocumentRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)

	// Services
	locks := util.NewKeyedMutex()
	milestoneSvc := milestone.NewService(milestoneRepo, blobs, locks, log)

	processor := payment.NewHTTPProcessor(cfg.Payment)
	gate := payment.NewGate(milestoneRepo, projectRepo, processor, locks, log)
	projection := payment.NewProjectionService(milestoneRepo, processor, log)

	documentSvc := document.NewService(documentRepo, milestoneRepo, blobs, log)

	sender := notification.NewSender(projectRepo, notificationRepo, notification.NewLogEmailSender(log), log)
	deduper := util.NewDeduper(rdb, time.Duration(cfg.Dedup.TTLSeconds)*time.Second, log)

	// Outbox dispatcher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	defer stopDispatcher()
	go dispatcher.Start(dispatcherCtx)

	replaySvc := outbox.NewReplayService(outboxRepo, publisher)

	// MQ consumers: one queue per committed transition event.
	type consumerSpec struct {
		queue      string
		routingKey string
		handle     mq.MessageHandler
	}
	specs := []consumerSpec{
		{"milestone.created.q", mqcontracts.RoutingMilestoneCreated,
			mqhandler.NewMilestoneCreatedHandler(sender, deduper, log).Handle},
		{"milestone.updated.q", mqcontracts.RoutingMilestoneUpdated,
			mqhandler.NewMilestoneUpdatedHandler(sender, deduper, log).Handle},
		{"milestone.completed.q", mqcontracts.RoutingMilestoneCompleted,
			mqhandler.NewMilestoneCompletedHandler(sender, deduper, log).Handle},
		{"milestone.approval.q", mqcontracts.RoutingMilestoneApproval,
			mqhandler.NewMilestoneApprovalHandler(sender, deduper, log).Handle},
		{"milestone.cancelled.q", mqcontracts.RoutingMilestoneCancelled,
			mqhandler.NewMilestoneCancelledHandler(sender, deduper, log).Handle},
		{"payment.released.q", mqcontracts.RoutingPaymentReleased,
			mqhandler.NewPaymentReleasedHandler(sender, deduper, log).Handle},
		{"document.uploaded.q", mqcontracts.RoutingDocumentUploaded,
			mqhandler.NewDocumentUploadedHandler(sender, deduper, log).Handle},
	}

	var consumers []*mq.Consumer
	for _, spec := range specs {
		consumer, err := mq.NewConsumer(cfg.MQ.URL, spec.queue, spec.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer",
				zap.String("queue", spec.queue),
				zap.Error(err),
			)
		}
		consumer.SetHandler(spec.handle)
		consumers = append(consumers, consumer)

		go func(c *mq.Consumer, queue string) {
			if err := c.StartConsuming(); err != nil {
				log.Fatal("Consumer failed", zap.String("queue", queue), zap.Error(err))
			}
		}(consumer, spec.queue)
	}

	// HTTP server
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Milestones:     handler.NewMilestoneHandler(milestoneSvc, log),
		Documents:      handler.NewDocumentHandler(documentSvc, log),
		Payments:       handler.NewPaymentHandler(gate, projection, log),
		Admin:          handler.NewAdminHandler(replaySvc, log),
		DB:             dbConn,
		Publisher:      publisher,
		Consumers:      consumers,
		JWTSecret:      cfg.JWT.Secret,
		AdminTokenHash: cfg.Admin.TokenHash,
		Logger:         log,
	})

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("milestone-service is fully initialized and running",
		zap.String("http_port", port),
		zap.Int("consumers", len(consumers)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down milestone-service gracefully...")

	stopDispatcher()
	for _, consumer := range consumers {
		consumer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("milestone-service shutdown complete")
}
