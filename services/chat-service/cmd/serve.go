package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/config"
	"github.com/dolt-y/deepseek-ai-h5/pkg/logger"
	"github.com/dolt-y/deepseek-ai-h5/pkg/registry"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/application"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/adapter"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/llm"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/media"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/mq"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/cache"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/db"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/repository"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/interfaces"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// 1. Postgres
	gdb, err := db.InitGorm(cfg.Postgres)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// 2. Redis: history cache, endpoint loads, rate limiting
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	defer rdb.Close()

	var historyCache adapter.HistoryCache
	redisCache, err := cache.NewRedisCache(rdb, cache.Options{
		Prefix: cfg.Redis.Prefix,
		TTL:    cfg.Redis.CacheTTL,
		Jitter: time.Duration(cfg.Redis.CacheJitterSec) * time.Second,
	})
	if err != nil {
		log.Warn("Redis不可用，历史记录缓存已禁用", zap.Error(err))
	} else {
		historyCache = redisCache
	}

	// 3. RocketMQ
	var publisher domain.EventPublisher
	producer, shutdownMQ, err := mq.InitProducer(cfg.RocketMQ, log)
	if err != nil {
		log.Warn("RocketMQ不可用，会话事件不会发布", zap.Error(err))
	} else {
		defer shutdownMQ()
		if producer != nil {
			publisher = producer
		}
	}

	repo := adapter.NewChatRepositoryAdapter(
		historyCache,
		repository.NewMessageRepository(gdb),
		repository.NewSessionRepository(gdb),
		publisher,
		log,
	)

	// 4. Consul
	svcMgr := newServiceManager(cfg, log)

	// 5. LLM
	var selector llm.EndpointSelector
	switch {
	case cfg.LLM.ServiceName == "":
	case svcMgr == nil || redisCache == nil:
		log.Warn("llm.service_name set but Consul or Redis unavailable, using llm.base_url",
			zap.String("service", cfg.LLM.ServiceName))
	default:
		selector = adapter.NewEndpointBalancer(cfg.LLM.ServiceName, svcMgr, redisCache, log)
	}
	llmClient := llm.NewClient(cfg.LLM, selector, log)

	bufferOpts, err := bufferOptions(cfg.Stream)
	if err != nil {
		return err
	}
	chatSvc := application.NewChatService(repo, llmClient, log, application.Options{
		DefaultModel:    cfg.LLM.DefaultModel,
		Buffer:          bufferOpts,
		ProviderTimeout: cfg.LLM.Timeout,
	})
	normalizer := application.NewMessageNormalizer(
		llm.NewVisionOCR(llmClient, cfg.OCR.Model),
		media.NewHTTPFetcher(cfg.OCR.FetchTimeout, cfg.OCR.MaxImageBytes),
		cfg.OCR.DefaultLanguage,
		log,
	)
	speech := application.NewSpeechService(llm.NewTranscriber(llmClient, cfg.LLM.SpeechModel))
	chatHandler := interfaces.NewChatHandler(chatSvc, normalizer, speech, log, cfg.OCR.MaxImageBytes)

	// 6. HTTP
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog(log))
	if err := r.SetTrustedProxies([]string{
		"127.0.0.1/32",
		"192.168.31.0/24",
		"172.20.0.0/16",
	}); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServerName,
			"timestamp": time.Now(),
		})
	})

	// 聊天相关路由（需要认证）
	ai := r.Group("/api/v1/ai")
	ai.Use(
		middleware.JwtAuth(cfg.Auth.JwtSecret),
		middleware.RateLimit(rdb, cfg.Redis.Prefix, cfg.Redis.RateLimitQPS, log),
	)
	chatHandler.RegisterRoutes(ai)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("chat service listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if svcMgr != nil {
		if err := svcMgr.Start(); err != nil {
			log.Warn("consul registration failed", zap.Error(err))
		} else {
			defer svcMgr.Stop()
		}
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newServiceManager returns nil when Consul is not configured or unreachable.
func newServiceManager(cfg *config.AppConfig, log *zap.Logger) *registry.ServiceManager {
	if cfg.Consul.Address == "" {
		return nil
	}
	localIP, err := registry.GetLocalIP()
	if err != nil {
		log.Warn("获取本机IP失败", zap.Error(err))
		return nil
	}
	svcMgr, err := registry.NewServiceManager(
		&registry.ConsulConfig{
			Address:    cfg.Consul.Address,
			Scheme:     cfg.Consul.Scheme,
			Datacenter: cfg.Consul.Datacenter,
		},
		&registry.ServiceConfig{
			ID:      registry.GenerateServiceID(cfg.ServerName, localIP, cfg.Port),
			Name:    cfg.ServerName,
			Tags:    []string{cfg.ServerName, "api", "v1"},
			Address: localIP,
			Port:    cfg.Port,
			HealthCheck: &registry.HealthCheck{
				HTTP:                           fmt.Sprintf("http://%s:%d/health", localIP, cfg.Port),
				Interval:                       10 * time.Second,
				Timeout:                        3 * time.Second,
				DeregisterCriticalServiceAfter: time.Minute,
			},
		},
		log,
	)
	if err != nil {
		log.Warn("初始化Consul客户端失败", zap.Error(err))
		return nil
	}
	return svcMgr
}

func bufferOptions(cfg config.StreamConfig) (application.BufferOptions, error) {
	opts := application.DefaultBufferOptions()
	if cfg.MinChars > 0 {
		opts.MinChars = cfg.MinChars
	}
	if cfg.MaxWait > 0 {
		opts.MaxWait = cfg.MaxWait
	}
	if cfg.Boundary != "" {
		re, err := regexp.Compile(cfg.Boundary)
		if err != nil {
			return opts, fmt.Errorf("stream.boundary: %w", err)
		}
		opts.Boundary = re
	}
	opts.EmitThinking = cfg.EmitThinking
	return opts, nil
}
