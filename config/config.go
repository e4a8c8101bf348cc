package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig selects the relational store used for the SQL cross-check.
// An empty URL disables it.
type DatabaseConfig struct {
	Driver string
	URL    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures run events. Enabled gates publishing from the run
// and serve commands; the worker always consumes.
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicRuns     string
	TopicResults  string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	LogLevel       string
}

// PipelineConfig holds the batch inputs, output locations and KPI parameters
type PipelineConfig struct {
	CustomersCSV       string
	OrdersXML          string
	DataDir            string
	ReportsDir         string
	StrictValidation   bool
	AdditionalMetrics  bool
	SQLCrossCheck      bool
	WindowDays         int
	TopN               int
	ParquetCompression string
	Currency           string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite"),
			URL:    getEnv("DATABASE_URL", "file:order_analytics.db?cache=shared"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvBool("KAFKA_ENABLED", false),
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			TopicRuns:     getEnv("KAFKA_TOPIC_RUNS", "pipeline-runs"),
			TopicResults:  getEnv("KAFKA_TOPIC_RESULTS", "pipeline-results"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "order-analytics-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
		Pipeline: PipelineConfig{
			CustomersCSV:       getEnv("PIPELINE_CUSTOMERS_CSV", "data/customers.csv"),
			OrdersXML:          getEnv("PIPELINE_ORDERS_XML", "data/orders.xml"),
			DataDir:            getEnv("PIPELINE_DATA_DIR", "data"),
			ReportsDir:         getEnv("PIPELINE_REPORTS_DIR", "reports"),
			StrictValidation:   getEnvBool("PIPELINE_STRICT_VALIDATION", false),
			AdditionalMetrics:  getEnvBool("PIPELINE_ADDITIONAL_METRICS", true),
			SQLCrossCheck:      getEnvBool("PIPELINE_SQL_CROSSCHECK", true),
			WindowDays:         getEnvInt("PIPELINE_WINDOW_DAYS", 30),
			TopN:               getEnvInt("PIPELINE_TOP_N", 10),
			ParquetCompression: getEnv("PIPELINE_PARQUET_COMPRESSION", "snappy"),
			Currency:           getEnv("PIPELINE_CURRENCY", "₹"),
		},
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
