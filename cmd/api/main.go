package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kryos/kryos-api/internal/config"
	"github.com/kryos/kryos-api/internal/gateway"
	"github.com/kryos/kryos-api/internal/handlers"
	"github.com/kryos/kryos-api/internal/queue"
	"github.com/kryos/kryos-api/internal/repository"
	"github.com/kryos/kryos-api/internal/services"
	"github.com/kryos/kryos-api/internal/signature"
	xhttp "github.com/kryos/kryos-api/pkg/http"
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
	logger.Info("starting kryos api", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	s := xhttp.CreateServer(func(o *xhttp.ServerOption) {
		o.Name = cfg.AppName + "-api"
		o.ReadTimeout = cfg.HttpServerReadTimeout
		o.WriteTimeout = cfg.HttpServerWriteTimeout
		o.RequestTimeout = cfg.HttpRequestTimeout
		o.MaxRequestBodySize = cfg.HttpMaxBodyBytes
		o.ReadBufferSize = 1024 * 16
		o.WriteBufferSize = 1024 * 16
	})
	s.UseDefaults(cfg.CorsOrigins(), prom.HTTPMiddleware)

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
		ClientName: cfg.AppName + "-api",
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
	} else {
		s.GET(cfg.MetricsURI, prom.Handler())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	events, err := queue.NewQueue(ctx, redisAdap, queue.QueueConfig{
		Name:          cfg.QueueName,
		ConsumerGroup: cfg.QueueConsumerGroup,
		MaxLen:        cfg.QueueMaxLen,
	})
	cancel()
	if err != nil {
		logger.Error("failed creating event queue", "error", err)
		return
	}

	paymentClient := gateway.NewPaymentClient(gateway.PaymentConfig{
		BaseURL:   cfg.GatewayBaseUrl,
		KeyID:     cfg.GatewayKeyID,
		KeySecret: cfg.GatewayKeySecret,
		Timeout:   cfg.GatewayTimeout,
	})
	mediaClient := gateway.NewMediaClient(gateway.MediaConfig{
		BaseURL:   cfg.MediaBaseUrl,
		CloudName: cfg.MediaCloudName,
		APIKey:    cfg.MediaApiKey,
		APISecret: cfg.MediaApiSecret,
		Timeout:   cfg.MediaTimeout,
	})
	if !cfg.MediaConfigured() {
		logger.Warn("media storage credentials missing, media routes will fail")
	}
	verifier := signature.NewVerifier(cfg.GatewayKeySecret)
	if !verifier.Configured() {
		logger.Error("RAZORPAY_KEY_SECRET is required to verify payment callbacks")
		return
	}

	transactionRepo := repository.NewTransactionRepository(db)
	userRepo := repository.NewUserRepository(db)
	ledger := repository.NewSnapshotRepository(redisAdap, cfg.LedgerKey)

	// services
	paymentService := services.NewPaymentService(paymentClient, verifier, transactionRepo, userRepo, events)
	approvalService := services.NewApprovalService(ledger, userRepo, verifier, events)
	userService := services.NewUserService(userRepo)
	mediaService := services.NewMediaService(mediaClient)
	healthService := services.NewHealthService(
		map[string]services.Pinger{"postgres": db, "redis": redisAdap},
		[]services.UpstreamReporter{paymentClient, mediaClient},
		events,
	)

	// v1 handlers
	g := s.Router.Group(cfg.HttpBaseRequestUrl)
	handlers.RegisterPaymentRoutes(g, handlers.NewPaymentHandler(paymentService, approvalService))
	handlers.RegisterAdminRoutes(g, handlers.NewAdminHandler(approvalService))
	handlers.RegisterUserRoutes(g, handlers.NewUserHandler(userService))
	handlers.RegisterMediaRoutes(g, handlers.NewMediaHandler(mediaService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
			c <- syscall.SIGTERM
		}
	}()

	<-c
	s.Shutdown()
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
