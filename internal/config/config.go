package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Store     StoreConfig
	Queue     QueueConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Jobs      JobsConfig
	Matcher   MatcherConfig
	Segment   SegmentConfig
	Video     VideoConfig
	Face      FaceConfig
	R2        R2Config
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port      string `validate:"required"`
	Env       string
	LogLevel  string `validate:"oneof=debug info warn error"`
	PublicURL string `validate:"required"`
	BodyLimit int    `validate:"gt=0"`
}

type StorageConfig struct {
	DataDir      string `validate:"required"`
	MaxVideoSize int64  `validate:"gt=0"`
	MaxImageSize int64  `validate:"gt=0"`
}

type StoreConfig struct {
	Backend string `validate:"oneof=file memory redis postgres"`
}

type QueueConfig struct {
	Backend string `validate:"oneof=local asynq"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	URL string
}

type JobsConfig struct {
	Workers     int           `validate:"gt=0"`
	QueueSize   int           `validate:"gt=0"`
	MaxDuration time.Duration `validate:"gte=0"`
	Retention   time.Duration `validate:"gt=0"`
}

type MatcherConfig struct {
	Threshold     float64 `validate:"gte=-1,lte=1"`
	MaxCandidates int     `validate:"gt=0"`
	ProgressEvery int     `validate:"gt=0"`
}

type SegmentConfig struct {
	MaxGap      float64 `validate:"gte=0"`
	MinDuration float64 `validate:"gte=0"`
}

type VideoConfig struct {
	FFmpegPath   string
	FFprobePath  string
	Codec        string `validate:"required"`
	Preset       string
	CRF          int `validate:"gte=0,lte=51"`
	TargetHeight int `validate:"gte=0"`
	Audio        bool
}

type FaceConfig struct {
	ServiceURL string `validate:"required,url"`
	Timeout    int    `validate:"gt=0"` // seconds
	MaxSide    int    `validate:"gte=0"`
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// Configured reports whether outputs should be published to R2
func (c R2Config) Configured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	SubmitPerHour int `validate:"gte=0"`
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("POSTGRES_URL")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("server.body_limit", "BODY_LIMIT")
	_ = v.BindEnv("storage.data_dir", "DATA_DIR")
	_ = v.BindEnv("storage.max_video_size", "MAX_VIDEO_SIZE")
	_ = v.BindEnv("storage.max_image_size", "MAX_IMAGE_SIZE")
	_ = v.BindEnv("store.backend", "STORE_BACKEND")
	_ = v.BindEnv("queue.backend", "QUEUE_BACKEND")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("postgres.url", "POSTGRES_URL")
	_ = v.BindEnv("jobs.workers", "JOB_WORKERS")
	_ = v.BindEnv("jobs.queue_size", "JOB_QUEUE_SIZE")
	_ = v.BindEnv("jobs.max_duration", "JOB_MAX_DURATION")
	_ = v.BindEnv("jobs.retention", "JOB_RETENTION")
	_ = v.BindEnv("matcher.threshold", "MATCH_THRESHOLD")
	_ = v.BindEnv("video.ffmpeg_path", "FFMPEG_PATH")
	_ = v.BindEnv("video.ffprobe_path", "FFPROBE_PATH")
	_ = v.BindEnv("video.target_height", "VIDEO_TARGET_HEIGHT")
	_ = v.BindEnv("video.audio", "VIDEO_AUDIO")
	_ = v.BindEnv("face.service_url", "FACE_SERVICE_URL")
	_ = v.BindEnv("face.timeout", "FACE_SERVICE_TIMEOUT")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			PublicURL: strings.TrimRight(v.GetString("server.public_url"), "/"),
			BodyLimit: v.GetInt("server.body_limit"),
		},
		Storage: StorageConfig{
			DataDir:      v.GetString("storage.data_dir"),
			MaxVideoSize: v.GetInt64("storage.max_video_size"),
			MaxImageSize: v.GetInt64("storage.max_image_size"),
		},
		Store: StoreConfig{Backend: v.GetString("store.backend")},
		Queue: QueueConfig{Backend: v.GetString("queue.backend")},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{URL: v.GetString("postgres.url")},
		Jobs: JobsConfig{
			Workers:     v.GetInt("jobs.workers"),
			QueueSize:   v.GetInt("jobs.queue_size"),
			MaxDuration: v.GetDuration("jobs.max_duration"),
			Retention:   v.GetDuration("jobs.retention"),
		},
		Matcher: MatcherConfig{
			Threshold:     v.GetFloat64("matcher.threshold"),
			MaxCandidates: v.GetInt("matcher.max_candidates"),
			ProgressEvery: v.GetInt("matcher.progress_every"),
		},
		Segment: SegmentConfig{
			MaxGap:      v.GetFloat64("segment.max_gap"),
			MinDuration: v.GetFloat64("segment.min_duration"),
		},
		Video: VideoConfig{
			FFmpegPath:   v.GetString("video.ffmpeg_path"),
			FFprobePath:  v.GetString("video.ffprobe_path"),
			Codec:        v.GetString("video.codec"),
			Preset:       v.GetString("video.preset"),
			CRF:          v.GetInt("video.crf"),
			TargetHeight: v.GetInt("video.target_height"),
			Audio:        v.GetBool("video.audio"),
		},
		Face: FaceConfig{
			ServiceURL: v.GetString("face.service_url"),
			Timeout:    v.GetInt("face.timeout"),
			MaxSide:    v.GetInt("face.max_side"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		JWT:       JWTConfig{Secret: v.GetString("jwt.secret")},
		RateLimit: RateLimitConfig{SubmitPerHour: v.GetInt("ratelimit.submit_per_hour")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("server.body_limit", 64*1024*1024)

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.max_video_size", 50*1024*1024)
	v.SetDefault("storage.max_image_size", 10*1024*1024)

	v.SetDefault("store.backend", "file")
	v.SetDefault("queue.backend", "local")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 16)
	v.SetDefault("jobs.max_duration", 30*time.Minute)
	v.SetDefault("jobs.retention", time.Hour)

	v.SetDefault("matcher.threshold", 0.5)
	v.SetDefault("matcher.max_candidates", 3)
	v.SetDefault("matcher.progress_every", 10)

	v.SetDefault("segment.max_gap", 0.5)
	v.SetDefault("segment.min_duration", 0.1)

	v.SetDefault("video.codec", "libx264")
	v.SetDefault("video.preset", "veryfast")
	v.SetDefault("video.crf", 23)
	v.SetDefault("video.target_height", 360)
	v.SetDefault("video.audio", false)

	v.SetDefault("face.service_url", "http://localhost:8085")
	v.SetDefault("face.timeout", 30)
	v.SetDefault("face.max_side", 1280)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("ratelimit.submit_per_hour", 0)
}

// Validate checks field constraints and cross-section requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Backend == "postgres" && c.Postgres.URL == "" {
		return fmt.Errorf("invalid config: postgres.url is required for the postgres store")
	}
	if c.Server.BodyLimit < int(c.Storage.MaxVideoSize+c.Storage.MaxImageSize) {
		return fmt.Errorf("invalid config: server.body_limit must cover max_video_size plus max_image_size")
	}
	return nil
}

// NeedsRedis reports whether any configured component talks to redis
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == "redis" || c.Queue.Backend == "asynq" || c.RateLimit.SubmitPerHour > 0
}
