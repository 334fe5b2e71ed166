package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/khanza-api/pkg/metrics"
	"github.com/nao1215/khanza-api/pkg/token"
)

// ISOLayout はトークン発行レスポンスとヘルスチェックの日時書式（UTC、マイクロ秒）。
const ISOLayout = "2006-01-02T15:04:05.000000Z"

// DisplayLayout はトークン確認レスポンスの日時書式。
const DisplayLayout = "2006-01-02 15:04:05"

// calendarMonthLabel は暦上の1ヶ月で発行したときのexpires_in。
const calendarMonthLabel = "30 days (1 month)"

// usageMessage はトークンの使い方の案内。
const usageMessage = "Include this token in Authorization header as: Bearer {token}"

// generateTokenRequest はトークン発行リクエスト。JSONとフォームの両方を受け付ける。
type generateTokenRequest struct {
	AdminKey string `json:"admin_key" form:"admin_key"`
}

// handleGenerateToken は管理キーを確認して期限付きトークンを発行するハンドラを返す。
func (s *Server) handleGenerateToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateTokenRequest
		_ = c.ShouldBind(&req) //nolint:errcheck // 不正なボディは管理キー無しとして扱う
		if req.AdminKey == "" {
			req.AdminKey = c.Query("admin_key")
		}

		if !s.matchAdminKey(req.AdminKey) {
			s.logs.Security.Warn("Token Generation Failed: Invalid Admin Key",
				zap.String("ip_address", c.ClientIP()),
				zap.String("user_agent", c.Request.UserAgent()))
			fail(c, http.StatusUnauthorized, "Invalid admin key")
			return
		}

		issued, err := s.codec.Issue(s.codec.Now())
		if err != nil {
			s.logs.App.Error("トークンの発行に失敗", zap.Error(err))
			fail(c, http.StatusInternalServerError, "Failed to generate token")
			return
		}
		metrics.TokensIssuedTotal.Inc()
		s.logs.Security.Info("Token Generated",
			zap.String("ip_address", c.ClientIP()),
			zap.String("expires_at", issued.ExpiresAt.In(s.loc).Format(DisplayLayout)))

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    "Token generated successfully",
			"token":      issued.Token,
			"expires_at": issued.ExpiresAt.UTC().Format(ISOLayout),
			"expires_in": s.expiresInLabel(),
			"usage":      usageMessage,
		})
	}
}

// matchAdminKey は管理キーを定数時間で比較する。管理キー未設定の場合は常に不一致。
func (s *Server) matchAdminKey(candidate string) bool {
	if s.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.adminKey)) == 1
}

// expiresInLabel はexpires_inに表示する有効期間を返す。
func (s *Server) expiresInLabel() string {
	if ttl := s.codec.TTL(); ttl > 0 {
		return ttl.String()
	}
	return calendarMonthLabel
}

// handleCheckToken はAuthorizationヘッダーのトークンを判定して結果を返すハンドラを返す。
// 判定結果に関わらずステータスは200。
func (s *Server) handleCheckToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := s.codec.Now()
		outcome := s.codec.Classify(c.GetHeader("Authorization"), now)

		switch {
		case outcome.Kind == token.KindPermanent:
			c.JSON(http.StatusOK, gin.H{
				"success":    true,
				"message":    "Token is valid (permanent token)",
				"valid":      true,
				"type":       token.KindPermanent.String(),
				"expires_at": nil,
			})
		case outcome.Kind == token.KindExpiring, outcome.Reason == token.ReasonExpired:
			expired := outcome.Reason == token.ReasonExpired
			message := "Token is valid"
			remaining := outcome.ExpiresAt.Unix() - now.Unix()
			if expired {
				message = "Token is expired"
				remaining = 0
			}
			c.JSON(http.StatusOK, gin.H{
				"success":        true,
				"message":        message,
				"valid":          !expired,
				"type":           token.KindExpiring.String(),
				"expires_at":     outcome.ExpiresAt.In(s.loc).Format(DisplayLayout),
				"current_time":   now.In(s.loc).Format(DisplayLayout),
				"time_remaining": strconv.FormatInt(remaining, 10) + " seconds",
			})
		case outcome.Reason == token.ReasonNoCredential:
			invalidToken(c, "No token provided")
		case outcome.Reason == token.ReasonSecretMismatch:
			invalidToken(c, "Invalid token")
		default:
			invalidToken(c, "Invalid token format")
		}
	}
}

// invalidToken はトークン確認で無効と判定したときの200レスポンスを返す。
func invalidToken(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"message": message,
		"valid":   false,
	})
}
