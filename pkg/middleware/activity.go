package middleware

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nao1215/khanza-api/pkg/metrics"
)

// ContextKeyRequestID はリクエストIDを保持するコンテキストキー。
const ContextKeyRequestID = "request_id"

// HeaderRequestID はレスポンスに付与するリクエストIDヘッダー。
const HeaderRequestID = "X-Request-ID"

// アクティビティログのメッセージ。ログ解析はこの値でレコードを識別する。
const (
	MessageAPIRequest       = "API Request"
	MessageAPIResponse      = "API Response"
	MessageAPIErrorResponse = "API Error Response"
)

// maxCapturedBody はレスポンス解析のために保持するボディの上限。
const maxCapturedBody = 1 << 20

// bodyCaptureWriter はレスポンスボディを複製して保持するResponseWriter。
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body      bytes.Buffer
	truncated bool
}

// Write はボディを書き込みつつ上限まで複製する。
func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.capture(b)
	return w.ResponseWriter.Write(b)
}

// WriteString はボディを書き込みつつ上限まで複製する。
func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *bodyCaptureWriter) capture(b []byte) {
	if w.truncated {
		return
	}
	if w.body.Len()+len(b) > maxCapturedBody {
		w.truncated = true
		w.body.Reset()
		return
	}
	w.body.Write(b)
}

// apiEnvelope はレスポンスJSONのうちログに残す項目。
type apiEnvelope struct {
	Success      *bool   `json:"success"`
	Message      *string `json:"message"`
	TotalRecords *int    `json:"total_records"`
}

// ActivityLogger はリクエストとレスポンスをapiチャネルに記録するGinミドルウェアを返す。
// ステータス400以上のレスポンスはerrorsチャネルにも記録する。
func ActivityLogger(api, errs *zap.Logger) gin.HandlerFunc {
	if api == nil {
		api = zap.NewNop()
	}
	if errs == nil {
		errs = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := "api_" + uuid.NewString()
		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		hasAuth := c.GetHeader("Authorization") != ""
		authType := "None"
		if hasAuth {
			authType = "Bearer Token"
		}

		requestFields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("url", fullURL(c)),
			zap.String("path", requestPath(c)),
			zap.String("ip_address", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("request_id", requestID),
			zap.Any("parameters", queryParameters(c)),
			zap.Bool("has_auth", hasAuth),
			zap.String("auth_type", authType),
		}
		api.Info(MessageAPIRequest, requestFields...)

		w := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()
		if size < 0 {
			size = 0
		}

		responseFields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status_code", status),
			zap.Float64("response_time_ms", math.Round(float64(elapsed.Microseconds())/10)/100),
			zap.Int("response_size", size),
			zap.Bool("success", status >= 200 && status < 300),
		}
		if !w.truncated {
			responseFields = append(responseFields, envelopeFields(w.body.Bytes())...)
		}

		level := zapcore.InfoLevel
		if status >= 400 {
			level = zapcore.WarnLevel
		}
		api.Log(level, MessageAPIResponse, responseFields...)

		if status >= 400 {
			errs.Error(MessageAPIErrorResponse, append(requestFields, responseFields[1:]...)...)
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// envelopeFields はレスポンスJSONからsuccess・message・total_recordsを取り出す。
// JSONでない場合は何も返さない。
func envelopeFields(body []byte) []zap.Field {
	var env apiEnvelope
	if len(body) == 0 || json.Unmarshal(body, &env) != nil {
		return nil
	}

	var fields []zap.Field
	if env.Success != nil {
		fields = append(fields, zap.Bool("api_success", *env.Success))
	}
	if env.Message != nil {
		fields = append(fields, zap.String("api_message", *env.Message))
	}
	if env.TotalRecords != nil {
		fields = append(fields, zap.Int("records_returned", *env.TotalRecords))
	}
	return fields
}

// fullURL はクエリ文字列を含むリクエストURLを組み立てる。
func fullURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

// requestPath は先頭のスラッシュを除いたパスを返す。ルートは "/" のまま。
func requestPath(c *gin.Context) string {
	p := strings.TrimPrefix(c.Request.URL.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

// queryParameters はクエリ文字列をキーごとの値にする。複数値のキーだけ配列になる。
func queryParameters(c *gin.Context) map[string]any {
	query := c.Request.URL.Query()
	params := make(map[string]any, len(query))
	for k, v := range query {
		if len(v) == 1 {
			params[k] = v[0]
			continue
		}
		params[k] = v
	}
	return params
}
