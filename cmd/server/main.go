package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/teamtasks/backend/api/handler"
	"github.com/teamtasks/backend/internal/config"
	"github.com/teamtasks/backend/internal/infrastructure/docstore"
	"github.com/teamtasks/backend/internal/infrastructure/monitor"
	pgInfra "github.com/teamtasks/backend/internal/infrastructure/postgres"
	redisInfra "github.com/teamtasks/backend/internal/infrastructure/redis"
	"github.com/teamtasks/backend/internal/infrastructure/stream"
	"github.com/teamtasks/backend/internal/middleware"
	"github.com/teamtasks/backend/internal/router"
	"github.com/teamtasks/backend/internal/services"
	"github.com/teamtasks/backend/internal/services/lifecycle"
	"github.com/teamtasks/backend/internal/services/notifier"
	"github.com/teamtasks/backend/pkg/httpcontext"
	"github.com/teamtasks/backend/pkg/logger"
	docRepo "github.com/teamtasks/backend/repository/docstore"
	pgRepo "github.com/teamtasks/backend/repository/postgres"
	assignmentUC "github.com/teamtasks/backend/usecase/assignment"
	taskUC "github.com/teamtasks/backend/usecase/task"
	userUC "github.com/teamtasks/backend/usecase/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Directory, zapLogger)
	if err != nil {
		zapLogger.Fatal("directory connection failed", zap.Error(err))
	}
	manager.Register("directory", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	docs, err := docstore.Open(cfg.DocStore.Path, docRepo.Collections()...)
	if err != nil {
		zapLogger.Fatal("failed to open document store", zap.Error(err))
	}
	manager.Register("docstore", func(ctx context.Context) error {
		return docs.Close()
	})

	outbox, err := stream.Open(cfg.Stream.Path, "outbox")
	if err != nil {
		zapLogger.Fatal("failed to open event outbox", zap.Error(err))
	}
	manager.Register("outbox", func(ctx context.Context) error {
		return outbox.Close()
	})

	mon := monitor.New(pool, redisClient, docs, outbox, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	taskRepo := docRepo.NewTaskRepository(docs)
	assignmentRepo := docRepo.NewAssignmentRepository(docs)
	directory := pgRepo.NewUserDirectory(pool)

	streamProcessor := services.NewStreamProcessor(
		outbox,
		redisClient,
		mon,
		zapLogger,
		services.ProcessorConfig{
			Interval:           cfg.Stream.DrainInterval,
			BatchSize:          cfg.Stream.BatchSize,
			MaxRetries:         cfg.Stream.MaxRetry,
			TopicAssigned:      cfg.Stream.TopicAssigned,
			TopicStatusChanged: cfg.Stream.TopicStatusChanged,
		},
	)
	streamProcessor.Start()
	manager.Register("stream_processor", func(ctx context.Context) error {
		streamProcessor.Stop(ctx)
		return nil
	})

	emitter := services.NewStreamBridge(streamProcessor)

	var mailer notifier.Mailer
	if cfg.Notify.Enabled {
		mailer = notifier.NewSMTPMailer(cfg.Notify.SMTPAddr, cfg.Notify.SMTPUser, cfg.Notify.SMTPPass, cfg.Notify.FromEmail)
	} else {
		mailer = notifier.NewLogMailer(zapLogger)
	}

	fanout := notifier.New(
		redisClient,
		taskRepo,
		assignmentRepo,
		directory,
		mailer,
		notifier.Config{
			TopicAssigned:      cfg.Stream.TopicAssigned,
			TopicStatusChanged: cfg.Stream.TopicStatusChanged,
		},
		zapLogger,
	)
	if err := fanout.Start(); err != nil {
		zapLogger.Fatal("notifier failed to start", zap.Error(err))
	}
	manager.Register("notifier", func(ctx context.Context) error {
		fanout.Stop(ctx)
		return nil
	})

	workflow := assignmentUC.New(taskRepo, assignmentRepo, directory, emitter, zapLogger)
	taskUseCase := taskUC.New(taskRepo, assignmentRepo, directory, workflow, emitter, zapLogger)
	userUseCase := userUC.New(directory, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Task:   apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger, cfg.IsProduction()),
		User:   apiHandler.NewUserHandler(userUseCase, ctxAdapter, zapLogger, cfg.IsProduction()),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger, cfg.IsProduction()),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
