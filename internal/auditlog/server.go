package auditlog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/auditlog/internal/metrics"
	"github.com/nao1215/auditlog/pkg/audit"
	"github.com/nao1215/auditlog/pkg/middleware"
)

// serviceName はヘルスチェックで返すサービス名。
const serviceName = "auditlog"

// EventStore はアクセス層が依存するイベントストアの操作。
type EventStore interface {
	// Append はイベントを追記し、付番されたレコードを返す。
	Append(ctx context.Context, ev audit.Event) (audit.Record, error)
	// Query はフィルタに一致するレコードをid降順で返す。
	Query(ctx context.Context, f audit.Filter) ([]audit.Record, error)
	// Count はフィルタに一致するレコード数を返す。
	Count(ctx context.Context, f audit.Filter) (int64, error)
	// Ping はストアに到達できるかを確認する。
	Ping(ctx context.Context) error
}

// Server は監査ログサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はイベントストア。
	store EventStore
	// logger はサーバーのロガー。
	logger zerolog.Logger
	// metrics はHTTPメトリクス。nilの場合は/metricsを公開しない。
	metrics *metrics.Metrics
	// allowedOrigins はCORSを許可するオリジン。
	allowedOrigins []string
	// storeTimeout は1回のストア操作に許す最大時間。
	storeTimeout time.Duration
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout time.Duration
}

// Option はServerの設定を変更する。
type Option func(*Server)

// WithPort はリッスンポートを設定する。
func WithPort(port string) Option {
	return func(s *Server) { s.port = port }
}

// WithLogger はロガーを設定する。
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics はメトリクスを設定し、/metricsを公開する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAllowedOrigins はCORSを許可するオリジンを設定する。
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithStoreTimeout は1回のストア操作に許す最大時間を設定する。
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Server) { s.storeTimeout = d }
}

// WithShutdownTimeout はグレースフルシャットダウンの待ち時間を設定する。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// NewServer は注入されたストアを使う新しい監査ログサーバーを生成する。
func NewServer(store EventStore, opts ...Option) *Server {
	s := &Server{
		port:            "8085",
		store:           store,
		logger:          zerolog.Nop(),
		storeTimeout:    5 * time.Second,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(s.logger))
	router.Use(middleware.Logger(s.logger))
	router.Use(s.metrics.Middleware())
	router.Use(middleware.CORS(s.allowedOrigins))
	s.router = router
	s.setupRoutes()

	return s
}

// Handler はルーターをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%s", s.port))
	if err != nil {
		return fmt.Errorf("ポート %s のリッスンに失敗: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve は指定されたリスナーでHTTPサーバーを起動する。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTPサーバーを起動しました")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		// 監査イベントの記録
		api.POST("/events", s.handleCreateEvent())
		// 監査レコードの検索（クエリパラメータ: actor, action, resource, limit）
		api.GET("/logs", s.handleQueryLogs())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})
	// レディネスチェック
	s.router.GET("/ready", s.handleReady())

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// storeContext はストア操作用にタイムアウト付きのコンテキストを返す。
func (s *Server) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.storeTimeout)
}

// writeError はエラーの種類に応じたステータスコードでエラーレスポンスを返す。
// ストアのエラー内容はログにのみ出力し、クライアントには返さない。
func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, audit.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_ = c.Error(err)
	s.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("ストア操作に失敗しました")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
}
