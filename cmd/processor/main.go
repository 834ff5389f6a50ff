package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kryos/kryos-api/internal/config"
	"github.com/kryos/kryos-api/internal/processor"
	"github.com/kryos/kryos-api/internal/queue"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/kryos/kryos-api/pkg/pg"
	"github.com/kryos/kryos-api/pkg/prom"
	"github.com/kryos/kryos-api/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync()

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting kryos processor", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	readConf := pg.Config{
		User:     cfg.PostgresReadUser,
		Host:     cfg.PostgresReadHost,
		Port:     cfg.PostgresReadPort,
		Password: cfg.PostgresReadPassword,
		Database: cfg.PostgresReadDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	}
	writeConf := pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, cfg.AppEnv == "dev" && cfg.AppDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName + "-processor",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	if cfg.MetricsAddr != "" {
		go prom.ListenAndServer(cfg.MetricsAddr, cfg.MetricsURI)
	}

	userRepo := repository.NewUserRepository(db)
	ledger := repository.NewSnapshotRepository(redisAdap, cfg.LedgerKey)
	mailer := processor.NewMailer(processor.SMTPConfig{
		Addr:     cfg.SmtpAddr,
		Host:     cfg.SmtpHost,
		Username: cfg.SmtpUsername,
		Password: cfg.SmtpPassword,
		From:     cfg.MailFrom,
	})

	idempotency := processor.DefaultIdempotencyConfig()
	idempotency.MaxRetries = cfg.QueueMaxRetries
	guard := processor.NewIdempotencyGuard(redisAdap, idempotency)

	service := processor.NewProcessorService(redisAdap, processor.Options{
		Queue: queue.QueueConfig{
			Name:              cfg.QueueName,
			ConsumerGroup:     cfg.QueueConsumerGroup,
			ConsumerName:      cfg.QueueConsumerName,
			MaxRetries:        cfg.QueueMaxRetries,
			VisibilityTimeout: cfg.QueueVisibilityTimeout,
			PollInterval:      cfg.QueuePollInterval,
			BatchSize:         cfg.QueueBatchSize,
			MaxLen:            cfg.QueueMaxLen,
			EnableDLQ:         true,
		},
		Consumers:      2,
		Workers:        cfg.ProcessorWorkers,
		BufferSize:     cfg.ProcessorBufferSize,
		DigestSchedule: cfg.DigestSchedule,
	})
	service.RegisterProcessor(processor.NewReceiptProcessor(userRepo, mailer, guard))
	service.RegisterDigest(processor.NewDigestJob(ledger, userRepo, mailer, cfg.DigestRecipientList()))

	if err = service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		service.Stop()
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	service.Stop()
	logger.Info("processor stopped", "stats", service.Metrics())
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "path", path, "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}
