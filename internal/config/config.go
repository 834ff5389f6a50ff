package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every setting of the api, processor and tooling binaries.
// Nothing else should read the environment directly.
type Config struct {
	AppEnv     string `env:"APP_ENV,default=dev"`
	AppName    string `env:"APP_NAME,default=kryos"`
	AppDebug   bool   `env:"APP_DEBUG,default=false"`
	AppBaseUrl string `env:"APP_BASE_URL,default=http://localhost:3000"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpBaseRequestUrl     string        `env:"HTTP_BASE_REQUEST_URI,default=/api/v1"`
	HttpServerReadTimeout  time.Duration `env:"HTTP_SERVER_READ_TIMEOUT,default=30s"`
	HttpServerWriteTimeout time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT,default=30s"`
	HttpRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=25s"`
	HttpMaxBodyBytes       int           `env:"HTTP_MAX_BODY_BYTES,default=104857600"`
	HttpCorsOrigins        string        `env:"HTTP_CORS_ORIGINS,default=*"`

	MetricsAddr string `env:"METRICS_ADDR"`
	MetricsURI  string `env:"METRICS_URI,default=/metrics"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresSSLMode       string `env:"POSTGRES_SSLMODE,default=disable"`
	MigrationsDir         string `env:"MIGRATIONS_DIR,default=migrations"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE,default=0"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=kryos:"`
	LedgerKey               string `env:"LEDGER_KEY,default=ledger:transactions"`

	PromNamespace string `env:"PROM_NAMESPACE,default=kryos"`

	// Payment gateway (Razorpay-compatible).
	GatewayBaseUrl   string        `env:"RAZORPAY_BASE_URL,default=https://api.razorpay.com"`
	GatewayKeyID     string        `env:"RAZORPAY_KEY_ID"`
	GatewayKeySecret string        `env:"RAZORPAY_KEY_SECRET"`
	GatewayTimeout   time.Duration `env:"RAZORPAY_TIMEOUT,default=10s"`

	// Object store (Cloudinary-compatible).
	MediaBaseUrl   string        `env:"CLOUDINARY_BASE_URL,default=https://api.cloudinary.com"`
	MediaCloudName string        `env:"CLOUDINARY_CLOUD_NAME"`
	MediaApiKey    string        `env:"CLOUDINARY_API_KEY"`
	MediaApiSecret string        `env:"CLOUDINARY_API_SECRET"`
	MediaTimeout   time.Duration `env:"CLOUDINARY_TIMEOUT,default=60s"`

	QueueName              string        `env:"QUEUE_NAME,default=transactions:recorded"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=receipts"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=receipts-1"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=1m"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=50"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`

	ProcessorWorkers    int    `env:"PROCESSOR_WORKERS,default=4"`
	ProcessorBufferSize int    `env:"PROCESSOR_BUFFER_SIZE,default=100"`
	DigestSchedule      string `env:"DIGEST_SCHEDULE,default=0 9 * * *"`
	DigestRecipients    string `env:"DIGEST_RECIPIENTS"`

	SmtpAddr     string `env:"SMTP_ADDR"`
	SmtpHost     string `env:"SMTP_HOST"`
	SmtpUsername string `env:"SMTP_USERNAME"`
	SmtpPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM,default=Kryos <no-reply@kryos.local>"`

	GatewayMockAddr        string        `env:"GATEWAY_MOCK_ADDR,default=:9090"`
	GatewayMockSuccessRate float64       `env:"GATEWAY_MOCK_SUCCESS_RATE,default=1"`
	GatewayMockMaxDelay    time.Duration `env:"GATEWAY_MOCK_MAX_DELAY,default=500ms"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Config")
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded configuration. Used by tests and tooling.
func Set(c *Config) {
	config = c
}

// CorsOrigins splits HTTP_CORS_ORIGINS on commas.
func (c *Config) CorsOrigins() []string {
	return splitList(c.HttpCorsOrigins)
}

// DigestRecipientList splits DIGEST_RECIPIENTS on commas.
func (c *Config) DigestRecipientList() []string {
	return splitList(c.DigestRecipients)
}

func (c *Config) MediaConfigured() bool {
	return c.MediaCloudName != "" && c.MediaApiKey != "" && c.MediaApiSecret != ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
