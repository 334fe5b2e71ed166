package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/khanza-api/pkg/metrics"
	"github.com/nao1215/khanza-api/pkg/token"
)

// ContextKeyTokenType は認証済みトークンの種別を保持するコンテキストキー。
const ContextKeyTokenType = "token_type"

// ExpiredAtLayout は期限切れレスポンスのexpired_atの書式。
const ExpiredAtLayout = "2006-01-02 15:04:05"

// 認証ゲートが返す拒否メッセージ。
const (
	MessageTokenRequired = "Token is required. Please include Authorization header."
	MessageInvalidFormat = "Invalid token format. Please generate a new token."
	MessageInvalidSecret = "Invalid token. Access denied."
	MessageTokenExpired  = "Token has expired. Please generate a new token."
)

// 認証監査ログ（api_security）のメッセージ。
const (
	SecurityAttempt        = "API Authentication Attempt"
	SecurityMissingToken   = "Authentication Failed: Missing Token"
	SecurityInvalidFormat  = "Authentication Failed: Invalid Token Format"
	SecurityInvalidSecret  = "Authentication Failed: Invalid Secret"
	SecurityTokenExpired   = "Authentication Failed: Token Expired"
	SecuritySuccessMessage = "Authentication Successful"
)

// TokenAuth はAuthorizationヘッダーのトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "token_type" を設定して次のハンドラへ進む。
// securityには認証試行ごとに試行と結果の2レコードを書き出す。locはexpired_atの表示タイムゾーン。
func TokenAuth(codec *token.Codec, security *zap.Logger, loc *time.Location) gin.HandlerFunc {
	if security == nil {
		security = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		now := codec.Now()
		outcome := codec.Classify(raw, now)

		fields := []zap.Field{
			zap.String("ip_address", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		}
		security.Info(SecurityAttempt, append(fields, zap.Bool("has_token", raw != ""))...)
		metrics.AuthAttemptsTotal.WithLabelValues(outcome.String()).Inc()

		switch outcome.Reason {
		case token.ReasonNone:
			security.Info(SecuritySuccessMessage, append(fields, zap.String("token_type", outcome.Kind.String()))...)
			c.Set(ContextKeyTokenType, outcome.Kind.String())
			c.Next()
		case token.ReasonNoCredential:
			security.Warn(SecurityMissingToken, fields...)
			reject(c, MessageTokenRequired)
		case token.ReasonMalformed:
			security.Warn(SecurityInvalidFormat, fields...)
			reject(c, MessageInvalidFormat)
		case token.ReasonSecretMismatch:
			security.Warn(SecurityInvalidSecret, fields...)
			reject(c, MessageInvalidSecret)
		case token.ReasonExpired:
			expiredAt := outcome.ExpiresAt.In(loc).Format(ExpiredAtLayout)
			security.Warn(SecurityTokenExpired, append(fields, zap.String("expired_at", expiredAt))...)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":    false,
				"message":    MessageTokenExpired,
				"expired_at": expiredAt,
			})
		default:
			reject(c, MessageInvalidFormat)
		}
	}
}

// reject は401の拒否レスポンスを返してチェーンを中断する。
func reject(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
}

// GetTokenType はGinコンテキストから認証済みトークンの種別を取得する。
// TokenAuthミドルウェアが事前に適用されている必要がある。
func GetTokenType(c *gin.Context) string {
	v, _ := c.Get(ContextKeyTokenType)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
