package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"procure-agent/api"
	"procure-agent/config"
	"procure-agent/dao"
	"procure-agent/logging"
	"procure-agent/route"
	"procure-agent/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func openStore(cfg config.StoreConfig, logger zerolog.Logger) (dao.MessageStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return dao.NewSQLiteStore(cfg.SQLitePath)
	default:
		store := dao.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("[Main] Redis 连接失败，会话历史暂不可用")
		}
		return store, nil
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	c, err := buildCore(cfgPath)
	if err != nil {
		return err
	}
	logger := c.logger
	if c.providersErr != nil {
		return c.providersErr
	}

	store, err := openStore(c.cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("打开会话存储失败: %w", err)
	}
	defer store.Close()

	chatSvc, err := service.NewChatService(service.ChatDeps{
		Providers: c.providers,
		Settings:  c.settings,
		Decisions: c.decisions,
		Retrieval: service.NewRetrievalAugmenter(c.aiClient, c.cfg.Chat.RetrievalTopK, c.cfg.Chat.RetrievalThreshold,
			logging.Component(logger, "retrieval")),
		Store: store,
	}, service.ChatOptionsFromConfig(c.cfg.Chat), logging.Component(logger, "chat"))
	if err != nil {
		return err
	}

	config.Watch(c.viper, c.settings, logging.Component(logger, "settings"))
	c.policy.Start()
	defer c.policy.Stop()

	if logging.ParseLevel(c.cfg.Logging.Level) != zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestID(), api.AccessLog(logging.Component(logger, "http")))
	route.Register(r, route.Deps{
		Chat:      chatSvc,
		Decisions: c.decisions,
		Settings:  c.settings,
		Limiter:   api.NewRateLimiter(c.cfg.Server.RateLimit, c.cfg.Server.RateBurst),
	})

	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("provider", c.settings.Snapshot().ModelProvider).
			Strs("providers", c.providers.Names()).
			Msg("[Main] 服务启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("[Main] 正在关闭服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("[Main] 服务关闭异常")
	}
	chatSvc.Wait()
	return nil
}
