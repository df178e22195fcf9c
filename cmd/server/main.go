package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/clipsniper/api/internal/client"
	"github.com/clipsniper/api/internal/config"
	"github.com/clipsniper/api/internal/facematch"
	"github.com/clipsniper/api/internal/handler"
	"github.com/clipsniper/api/internal/middleware"
	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/queue"
	"github.com/clipsniper/api/internal/service"
	"github.com/clipsniper/api/internal/storage"
	"github.com/clipsniper/api/internal/store"
	"github.com/clipsniper/api/internal/video"
	ws "github.com/clipsniper/api/internal/websocket"
	"github.com/clipsniper/api/internal/worker"
	"github.com/clipsniper/api/pkg/response"
)

func main() {
	// A missing .env file is fine; the environment may be set already.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis not available: %v", err)
		}
		defer redisClient.Close()
	}

	workspace, err := storage.NewWorkspace(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to prepare data directory: %v", err)
	}

	statusStore, closeStore, err := openStore(ctx, cfg, redisClient, workspace)
	if err != nil {
		log.Fatalf("Failed to open status store: %v", err)
	}
	defer closeStore()

	faceClient := client.NewFaceClient(&cfg.Face)
	if err := faceClient.HealthCheck(ctx); err != nil {
		log.Printf("Warning: face service not available: %v", err)
	}

	codec := video.NewFFmpeg(video.Options{
		FFmpegPath:  cfg.Video.FFmpegPath,
		FFprobePath: cfg.Video.FFprobePath,
		VideoCodec:  cfg.Video.Codec,
		Preset:      cfg.Video.Preset,
		CRF:         cfg.Video.CRF,
		Audio:       cfg.Video.Audio,
	})
	matcher := facematch.NewMatcher(faceClient, codec, facematch.Config{
		Threshold:     cfg.Matcher.Threshold,
		MaxCandidates: cfg.Matcher.MaxCandidates,
		ProgressEvery: cfg.Matcher.ProgressEvery,
	})
	assembler := video.NewAssembler(codec, workspace.WorkDir())

	publisher, r2Enabled := newPublisher(ctx, cfg)

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	var jobQueue queue.Queue
	var localQueue *queue.Local
	if cfg.Queue.Backend == "asynq" {
		jobQueue = queue.NewAsynq(redisOpt, cfg.Jobs.QueueSize, cfg.Jobs.MaxDuration)
	} else {
		localQueue = queue.NewLocal(cfg.Jobs.Workers, cfg.Jobs.QueueSize)
		jobQueue = localQueue
	}

	clipService := service.NewClipService(statusStore, jobQueue, workspace, matcher, assembler, publisher, hub, service.Options{
		Retention:          cfg.Jobs.Retention,
		MaxDuration:        cfg.Jobs.MaxDuration,
		TargetHeight:       cfg.Video.TargetHeight,
		MaxVideoSize:       cfg.Storage.MaxVideoSize,
		MaxImageSize:       cfg.Storage.MaxImageSize,
		SegmentMaxGap:      cfg.Segment.MaxGap,
		SegmentMinDuration: cfg.Segment.MinDuration,
	})

	var workerServer *asynq.Server
	if localQueue != nil {
		localQueue.Start(clipService)
		if n, err := clipService.RecoverInterrupted(ctx); err != nil {
			log.Printf("Failed to recover interrupted jobs: %v", err)
		} else if n > 0 {
			log.Printf("Marked %d interrupted jobs as failed", n)
		}
	} else {
		workerServer = startWorkerServer(cfg, redisOpt, clipService)
	}

	validate := validator.New()
	clipHandler := handler.NewClipHandler(clipService, validate, cfg.Storage)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"store": cfg.Store.Backend,
				"queue": cfg.Queue.Backend,
				"face":  faceClient.IsConfigured(),
				"r2":    r2Enabled,
				"auth":  authMiddleware.Enabled(),
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	clips := api.Group("/clips")
	clips.Post("/", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), clipHandler.Submit)
	clips.Get("/:jobId/status", clipHandler.Status)
	clips.Get("/:jobId", clipHandler.Get)

	app.Static("/media/output", workspace.OutputDir(), fiber.Static{
		ByteRange: true,
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		if !model.ValidJobID(jobID) {
			c.Close()
			return
		}
		hub.HandleConnection(c, jobID)
	}))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("Server error: %v", err)
	}

	if workerServer != nil {
		workerServer.Shutdown()
	}
	if err := jobQueue.Close(); err != nil {
		log.Printf("Queue shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// openStore builds the configured status store and its close function
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, workspace *storage.Workspace) (store.StatusStore, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "redis":
		// Records outlive the files they describe by a day.
		return store.NewRedisStore(redisClient, cfg.Jobs.Retention+24*time.Hour), func() {}, nil
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		fs, err := store.NewFileStore(filepath.Join(workspace.Root(), "status"))
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

// newPublisher uploads clips to R2 when configured and serves them from
// disk otherwise.
func newPublisher(ctx context.Context, cfg *config.Config) (storage.Publisher, bool) {
	if !cfg.R2.Configured() {
		return storage.NewLocalPublisher(cfg.Server.PublicURL), false
	}
	r2Client, err := client.NewR2Client(ctx, &cfg.R2)
	if err != nil {
		log.Printf("Warning: R2 client init failed, serving clips locally: %v", err)
		return storage.NewLocalPublisher(cfg.Server.PublicURL), false
	}
	log.Printf("Publishing clips to R2 bucket %s", cfg.R2.BucketName)
	return storage.NewObjectPublisher(r2Client), true
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, h queue.Handler) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Jobs.Workers,
		Queues: map[string]int{
			queue.QueueClips:       6,
			queue.QueueMaintenance: 1,
		},
		LogLevel: asynqLogLevel,
	})

	mux := asynq.NewServeMux()
	worker.NewClipWorker(h).Register(mux)

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Asynq worker error: %v", err)
	}
	return srv
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
