package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nao1215/khanza-api/internal/config"
	"github.com/nao1215/khanza-api/internal/logging"
	"github.com/nao1215/khanza-api/internal/store"
	"github.com/nao1215/khanza-api/pkg/middleware"
	"github.com/nao1215/khanza-api/pkg/token"
)

// Repository はハンドラが参照するデータの取得元。*store.Store が実装する。
type Repository interface {
	Ping(ctx context.Context) error
	Name() string
	FindPegawaiByNIK(ctx context.Context, nik string) (store.Pegawai, error)
	ListRawatInapDr(ctx context.Context, year, month int) ([]store.RawatInapDr, error)
	ListRawatJlDr(ctx context.Context, year, month int) ([]store.RawatJlDr, error)
	ListJnsPerawatanInap(ctx context.Context) ([]store.JnsPerawatanInap, error)
	ListJnsPerawatan(ctx context.Context) ([]store.JnsPerawatan, error)
}

// Server はkhanza-apiのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// repo はKhanzaデータベースへの問い合わせ。
	repo Repository
	// codec はトークンの発行と判定を行う。
	codec *token.Codec
	// adminKey はトークン発行に必要な管理キー。
	adminKey string
	// loc はレスポンスの日時表示に使うタイムゾーン。
	loc *time.Location
	// logs はアプリケーションログとAPIログチャネル。
	logs *logging.Loggers
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout time.Duration
	// allowedOrigins はCORSで許可するオリジン。
	allowedOrigins []string
}

// Option はServerの設定を変更する。
type Option func(*Server)

// WithCodec はトークンCodecを差し替える。テストで時計を固定するために使う。
func WithCodec(codec *token.Codec) Option {
	return func(s *Server) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// NewServer は新しいAPIサーバーを生成する。
func NewServer(cfg *config.Config, repo Repository, logs *logging.Loggers, opts ...Option) *Server {
	if logs == nil {
		logs = logging.Nop()
	}

	s := &Server{
		router:          gin.New(),
		port:            cfg.Server.Port,
		repo:            repo,
		codec:           token.NewCodec(cfg.Token.Secret, token.WithTTL(cfg.Token.TTL)),
		adminKey:        cfg.Token.AdminKey,
		loc:             cfg.Location(),
		logs:            logs,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		allowedOrigins:  cfg.Server.AllowedOrigins,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされたらグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logs.App.Info("APIサーバーを起動します", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("APIサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logs.App.Info("APIサーバーを停止します", zap.Duration("timeout", s.shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recovery(s.logs.App))
	s.router.Use(middleware.CORS(s.allowedOrigins))

	api := s.router.Group("/api")
	api.Use(middleware.ActivityLogger(s.logs.API, s.logs.Errors))
	api.Use(middleware.Recovery(s.logs.App))
	{
		// トークン発行・確認（認証不要）
		api.POST("/token/generate", s.handleGenerateToken())
		api.GET("/token/check", s.handleCheckToken())

		api.GET("/health", s.handleHealth())

		// 参照系（トークン必須）
		protected := api.Group("")
		protected.Use(middleware.TokenAuth(s.codec, s.logs.Security, s.loc))
		{
			protected.GET("/pegawai", s.handleGetPegawai())
			protected.GET("/rawat-inap-dr", s.handleGetRawatInapDr())
			protected.GET("/rawat-jl-dr", s.handleGetRawatJlDr())
			protected.GET("/jns-perawatan-inap", s.handleGetJnsPerawatanInap())
			protected.GET("/jns-perawatan", s.handleGetJnsPerawatan())
		}
	}

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "khanza-api"})
	})
}

// fail は {"success": false, "message": ...} 形式のエラーレスポンスを返す。
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
