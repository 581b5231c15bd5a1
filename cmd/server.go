/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/site-editor/internal/api"
	"github.com/mautops/site-editor/internal/config"
	"github.com/mautops/site-editor/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Site Editor API server.
The server will listen on the configured host and port, host editing
sessions and push session state to WebSocket subscribers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		api.SetLogger(logger)
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		ctr.Start()

		// 3. 监听配置文件,编辑器配置变化后对新会话生效
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath)
			watcher.OnEditorChange(ctr.Sessions().UpdateOptions)
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("config watcher disabled")
			}
			defer watcher.Stop()
		}

		// 4. 回收空闲会话
		reaperCtx, stopReaper := context.WithCancel(context.Background())
		defer stopReaper()
		go reapIdleSessions(reaperCtx, ctr, cfg.Editor.IdleTimeout, logger)

		// 5. 设置路由
		router := api.SetupRoutes(api.RouterDeps{
			Config:    cfg,
			DB:        ctr.DB(),
			Sessions:  ctr.Sessions(),
			Templates: ctr.Templates(),
			Hub:       ctr.Hub(),
			Logger:    logger,
		})

		// 6. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-serveErr:
			if err != nil {
				_ = ctr.Close(context.Background())
				return fmt.Errorf("failed to start server: %w", err)
			}
		}

		logger.Info("shutting down server")

		// 优雅关闭: 先停止接收请求,再写出所有会话的待保存修改
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("server forced to shutdown")
		}
		if err := ctr.Close(ctx); err != nil {
			logger.WithError(err).Error("failed to close container")
		}

		logger.Info("server exited")
		return nil
	},
}

// reapIdleSessions 定期关闭空闲会话
func reapIdleSessions(ctx context.Context, ctr *container.Container, idle time.Duration, logger logrus.FieldLogger) {
	if idle <= 0 {
		return
	}
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := ctr.Sessions().CloseIdle(ctx, now); n > 0 {
				logger.WithField("closed", n).Info("idle editor sessions closed")
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
