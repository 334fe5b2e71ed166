package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// pingTimeout はヘルスチェックでのDB疎通確認の待ち時間。
const pingTimeout = 3 * time.Second

// handleHealth はAPIとデータベースの状態を返すハンドラを返す。
// データベースに接続できない場合は503。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := s.codec.Now().UTC().Format(ISOLayout)

		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := s.repo.Ping(ctx); err != nil {
			s.logs.App.Warn("ヘルスチェックでDB疎通に失敗", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success":   false,
				"message":   "Database connection failed",
				"timestamp": now,
				"database":  "Connection failed: " + s.repo.Name(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "API is running",
			"timestamp": now,
			"database":  "Connected to: " + s.repo.Name(),
		})
	}
}
