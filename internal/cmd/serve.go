package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antigravity/summarizer-gateway/internal/auth"
	"github.com/antigravity/summarizer-gateway/internal/config"
	"github.com/antigravity/summarizer-gateway/internal/github"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"github.com/antigravity/summarizer-gateway/internal/pipeline"
	"github.com/antigravity/summarizer-gateway/internal/ratelimit"
	"github.com/antigravity/summarizer-gateway/internal/server"
	"github.com/antigravity/summarizer-gateway/internal/storage"
	"github.com/antigravity/summarizer-gateway/internal/summarizer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the summarizer server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile("")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 初始化日志
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Summarizer Gateway",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	db, store, err := openStore(cfg)
	if err != nil {
		log.Error("Failed to open key store", zap.Error(err))
		return err
	}
	defer db.Close()

	if len(cfg.Security.DemoKeys) > 0 {
		log.Info("Demo keys enabled", zap.Int("count", len(cfg.Security.DemoKeys)))
	}

	sum, closeSummarizer, err := newSummarizer(cmd.Context(), cfg, log)
	if err != nil {
		log.Error("Failed to create summarizer", zap.Error(err))
		return err
	}
	defer closeSummarizer()

	limiter := ratelimit.New(cfg.RateLimit)
	p := pipeline.New(pipeline.Deps{
		Auth:       auth.NewAuthenticator(store, cfg.Security.DemoKeys, log),
		Limiter:    limiter,
		Repos:      github.NewClient(cfg.GitHub, log),
		Summarizer: sum,
	}, log)

	// 创建服务器
	srv, err := server.New(cfg, log, p, limiter)
	if err != nil {
		log.Error("Failed to create server", zap.Error(err))
		return err
	}
	if err := srv.StartSweeper(); err != nil {
		log.Error("Failed to start rate limit sweeper", zap.Error(err))
		return err
	}
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server started", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
		return err
	}
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}

func openStore(cfg *config.Config) (*sql.DB, *storage.KeyStore, error) {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return db, storage.NewKeyStore(db, cfg.Database.Driver, cfg.Database.Capabilities), nil
}

// newSummarizer falls back to a stub that fails every request when no
// Gemini key is configured, so key management still works.
func newSummarizer(ctx context.Context, cfg *config.Config, log *zap.Logger) (summarizer.Summarizer, func(), error) {
	if cfg.Summarizer.APIKey == "" {
		log.Warn("No summarizer API key set, summarize requests will fail")
		return summarizer.Unconfigured{}, func() {}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	g, err := summarizer.NewGemini(ctx, cfg.Summarizer, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Summarizer ready", zap.String("model", g.Model()))
	return g, func() { _ = g.Close() }, nil
}
