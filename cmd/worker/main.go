package main

import (
	"context"

	"github.com/MackHatch/etl-studio/config"
	"github.com/MackHatch/etl-studio/imports/repositories"
	"github.com/MackHatch/etl-studio/imports/services"
	"github.com/MackHatch/etl-studio/imports/tasks"
	"github.com/MackHatch/etl-studio/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	// Initialize Zap logger
	config.InitLogger()

	// Load environment variables
	config.LoadEnv()

	// Initialize database and configs
	db := config.ConfigureDatabase()
	ctx := context.Background()

	// Redis client for progress pub/sub; Asynq manages its own connection.
	redisClient := config.InitRedisServer(ctx)

	redisAddr := config.GetEnvDefault("REDIS_ADDRESS", "localhost:6379")
	asynqRedisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: config.GetEnv("REDIS_PASSWORD"),
		DB:       0,
	}

	asynqClient := asynq.NewClient(asynqRedisOpt)
	defer asynqClient.Close()

	// Initialize the mailer
	utils.InitializeMailer()

	limits := config.GetImportLimits()

	var objectStore utils.ObjectStorage
	minioStore, err := utils.NewMinioStorageFromEnv()
	if err != nil {
		config.Logger.Fatal("Failed to configure object storage", zap.Error(err))
	}
	if minioStore != nil {
		objectStore = minioStore
	} else {
		config.Logger.Warn("S3 credentials not set, S3-stored runs will fail deterministically")
	}

	// Repositories and services
	repo := repositories.NewImportRunRepository(db)
	publisher := services.NewProgressPublisher(redisClient, config.Logger)
	localFiles := utils.NewLocalFileStorage(config.GetUploadRoot())

	processor := services.NewRunProcessor(
		repo,
		localFiles,
		objectStore,
		publisher,
		limits,
		services.DefaultPersisterConfig(),
		config.Logger,
	)
	notifier := services.NewDeadLetterNotifier(repo, config.Logger)
	handler := tasks.NewImportRunHandler(processor, notifier, repo, config.Logger)

	enqueuer := tasks.NewClient(asynqClient, limits.MaxRetries, config.Logger)
	retryService := services.NewRetryService(repo, enqueuer, config.Logger)
	retryHandler := tasks.NewRetryImportRunHandler(retryService, config.Logger)

	// Background cleanup of expired reports and temp downloads
	go utils.RunScheduledCleanup()

	srv := asynq.NewServer(asynqRedisOpt, asynq.Config{
		Concurrency: config.GetEnvInt("WORKER_CONCURRENCY", 4),
		Queues: map[string]int{
			tasks.QueueImports: 5,
			"default":          1,
		},
		RetryDelayFunc: tasks.RetryDelay,
	})

	config.Logger.Info("Import worker starting",
		zap.String("redis", redisAddr),
		zap.Int("max_retries", limits.MaxRetries))
	if err := srv.Run(tasks.NewMux(handler, retryHandler)); err != nil {
		config.Logger.Fatal("Worker stopped", zap.Error(err))
	}
}
