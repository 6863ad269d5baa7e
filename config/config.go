package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type AppConfig struct {
	DatabaseURL                string
	RabbitMQURL                string
	RabbitMQManagementEndpoint string
	RedisSentinelHosts         string
	RedisMasterName            string
	RedisUrl                   string
	LogLevel                   string
	ServiceName                string

	RequestsPath  string
	FuzzersDir    string
	BenchmarksDir string
	Benchmarks    []string

	SchedulerConfig    SchedulerConfig
	ExperimentDefaults ExperimentDefaults
	Filestore          FilestoreConfig
	DockerRegistry     string
}

type SchedulerConfig struct {
	SchedulingInterval time.Duration
	DispatchBatchSize  int
	MaxDispatchRetries int
}

// ExperimentDefaults are applied to requested experiments that do not
// override them in the requests file.
type ExperimentDefaults struct {
	Trials       int
	MaxTotalTime int
}

type FilestoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

func getEnv(key string, logger *zap.Logger) string {
	value := os.Getenv(key)
	if value == "" {
		logger.Fatal("required environment variable is not set", zap.String("key", key))
	}
	return value
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found")
	}

	config := &AppConfig{
		DatabaseURL:                getEnv("DATABASE_URL", logger),
		RabbitMQURL:                getEnv("RABBITMQ_URL", logger),
		RabbitMQManagementEndpoint: os.Getenv("RABBITMQ_MANAGEMENT_ENDPOINT"),
		RedisSentinelHosts:         os.Getenv("REDIS_SENTINEL_HOSTS"),
		RedisMasterName:            os.Getenv("REDIS_MASTER"),
		RedisUrl:                   os.Getenv("OVERRIDE_REDIS_URL"), // optional, for local dev
		LogLevel:                   os.Getenv("LOG_LEVEL"),
		ServiceName:                os.Getenv("SERVICE_NAME"),

		RequestsPath:  getEnv("EXPERIMENT_REQUESTS_PATH", logger),
		FuzzersDir:    os.Getenv("FUZZERS_DIR"),
		BenchmarksDir: os.Getenv("BENCHMARKS_DIR"),
		Benchmarks:    parseList(os.Getenv("BENCHMARKS")),

		SchedulerConfig: SchedulerConfig{
			SchedulingInterval: parseDuration(os.Getenv("SCHEDULER_INTERVAL"), 10*time.Minute),
			DispatchBatchSize:  parseInt(os.Getenv("SCHEDULER_DISPATCH_BATCH_SIZE"), 5),
			MaxDispatchRetries: parseInt(os.Getenv("SCHEDULER_MAX_DISPATCH_RETRIES"), 3),
		},
		ExperimentDefaults: ExperimentDefaults{
			Trials:       parseInt(os.Getenv("EXPERIMENT_TRIALS"), 20),
			MaxTotalTime: parseInt(os.Getenv("EXPERIMENT_MAX_TOTAL_TIME"), 82800),
		},
		Filestore: FilestoreConfig{
			Endpoint:        os.Getenv("FILESTORE_ENDPOINT"),
			AccessKeyID:     os.Getenv("FILESTORE_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("FILESTORE_SECRET_ACCESS_KEY"),
			Bucket:          os.Getenv("FILESTORE_BUCKET"),
			UseSSL:          parseBool(os.Getenv("FILESTORE_USE_SSL"), true),
		},
		DockerRegistry: os.Getenv("DOCKER_REGISTRY"),
	}

	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "fuzzbench" // Default service name
	}
	if config.DockerRegistry == "" {
		config.DockerRegistry = "gcr.io/fuzzbench"
	}

	// Redis is reached either through sentinel or a direct URL.
	if config.RedisUrl == "" {
		if config.RedisSentinelHosts == "" {
			logger.Fatal("REDIS_SENTINEL_HOSTS environment variable is required")
		}
		if config.RedisMasterName == "" {
			logger.Fatal("REDIS_MASTER environment variable is required")
		}
	}

	if len(config.Benchmarks) == 0 {
		logger.Fatal("BENCHMARKS environment variable is required")
	}

	return config
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
