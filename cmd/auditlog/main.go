// 監査ログサービスのエントリポイント。
// クライアントから送信された監査イベントを追記専用のSQLiteストアに記録し、
// 完全一致フィルタと件数上限による検索を提供する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/nao1215/auditlog/internal/auditlog"
	"github.com/nao1215/auditlog/internal/auditstore"
	"github.com/nao1215/auditlog/internal/config"
	"github.com/nao1215/auditlog/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}

	logger := config.NewLogger(cfg.Logging, os.Stdout)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	store, err := auditstore.Open(ctx, cfg.DBPath, auditstore.WithLogger(logger), auditstore.WithMetrics(m))
	if err != nil {
		logger.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("イベントストアの初期化に失敗")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("データベースのクローズに失敗")
		}
	}()

	server := auditlog.NewServer(store,
		auditlog.WithPort(cfg.Port),
		auditlog.WithLogger(logger),
		auditlog.WithMetrics(m),
		auditlog.WithAllowedOrigins(cfg.AllowedOrigins),
		auditlog.WithStoreTimeout(cfg.StoreTimeout),
		auditlog.WithShutdownTimeout(cfg.ShutdownTimeout),
	)

	logger.Info().Str("port", cfg.Port).Str("db_path", cfg.DBPath).Msg("監査ログサービスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("監査ログサービスの起動に失敗")
		stop()
		_ = store.Close()
		os.Exit(1)
	}
}
