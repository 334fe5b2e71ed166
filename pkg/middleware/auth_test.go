package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nao1215/khanza-api/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のAPI_TOKEN_SECRET。
const testSecret = "abc"

// fakeClock はテストから進められる時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// newAuthRouter はTokenAuthを適用したテスト用ルーターと監査ログの観測器を返す。
func newAuthRouter(t *testing.T, codec *token.Codec) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	router := gin.New()
	router.Use(TokenAuth(codec, zap.New(core), time.UTC))
	router.GET("/test", func(c *gin.Context) {
		c.Header("X-Downstream", "yes")
		c.JSON(http.StatusTeapot, gin.H{"token_type": GetTokenType(c), "from": "handler"})
	})
	return router, logs
}

// doAuthRequest はAuthorizationヘッダー付きでGET /test を実行する。空文字ならヘッダーを付けない。
func doAuthRequest(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody はJSONレスポンスをmapにする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v", err)
	}
	return body
}

// TestTokenAuth はTokenAuthミドルウェアを検証する。
func TestTokenAuth(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

	t.Run("永続トークンではハンドラーのレスポンスがそのまま返ること", func(t *testing.T) {
		t.Parallel()

		router, _ := newAuthRouter(t, token.NewCodec(testSecret))
		w := doAuthRequest(router, "Bearer abc")

		if w.Code != http.StatusTeapot {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTeapot)
		}
		if got := w.Header().Get("X-Downstream"); got != "yes" {
			t.Errorf("X-Downstream = %q, want %q", got, "yes")
		}
		body := decodeBody(t, w)
		if body["from"] != "handler" {
			t.Errorf("from = %v, want %q", body["from"], "handler")
		}
		if body["token_type"] != "permanent" {
			t.Errorf("token_type = %v, want %q", body["token_type"], "permanent")
		}
	})

	t.Run("Bearer接頭辞なしの永続トークンも受け付けること", func(t *testing.T) {
		t.Parallel()

		router, _ := newAuthRouter(t, token.NewCodec(testSecret))
		w := doAuthRequest(router, "abc")

		if w.Code != http.StatusTeapot {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTeapot)
		}
	})

	t.Run("有効な期限付きトークンで通過すること", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: base}
		codec := token.NewCodec(testSecret, token.WithClock(clock.Now))
		issued, err := codec.Issue(clock.Now())
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		router, _ := newAuthRouter(t, codec)
		w := doAuthRequest(router, "Bearer "+issued.Token)

		if w.Code != http.StatusTeapot {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTeapot)
		}
		if body := decodeBody(t, w); body["token_type"] != "expiring" {
			t.Errorf("token_type = %v, want %q", body["token_type"], "expiring")
		}
	})

	t.Run("Authorizationヘッダーが無い場合は401が返ること", func(t *testing.T) {
		t.Parallel()

		router, _ := newAuthRouter(t, token.NewCodec(testSecret))
		w := doAuthRequest(router, "")

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		body := decodeBody(t, w)
		if body["success"] != false {
			t.Errorf("success = %v, want false", body["success"])
		}
		if body["message"] != MessageTokenRequired {
			t.Errorf("message = %v, want %q", body["message"], MessageTokenRequired)
		}
		if len(body) != 2 {
			t.Errorf("レスポンスのキー数 = %d, want 2: %v", len(body), body)
		}
	})

	t.Run("Base64でないトークンは形式エラーになること", func(t *testing.T) {
		t.Parallel()

		router, _ := newAuthRouter(t, token.NewCodec(testSecret))
		w := doAuthRequest(router, "Bearer not-base64!!")

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := decodeBody(t, w); body["message"] != MessageInvalidFormat {
			t.Errorf("message = %v, want %q", body["message"], MessageInvalidFormat)
		}
	})

	t.Run("シークレットが異なるトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		forged := token.Encode(base.Add(time.Hour), strings.Repeat("x", token.NonceLength), "wrong")
		router, _ := newAuthRouter(t, token.NewCodec(testSecret, token.WithClock(func() time.Time { return base })))
		w := doAuthRequest(router, "Bearer "+forged)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := decodeBody(t, w); body["message"] != MessageInvalidSecret {
			t.Errorf("message = %v, want %q", body["message"], MessageInvalidSecret)
		}
	})

	t.Run("有効期間1秒のトークンは2秒後に期限切れになること", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: base}
		codec := token.NewCodec(testSecret, token.WithTTL(time.Second), token.WithClock(clock.Now))
		issued, err := codec.Issue(clock.Now())
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		clock.Advance(2 * time.Second)

		router, logs := newAuthRouter(t, codec)
		w := doAuthRequest(router, "Bearer "+issued.Token)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		body := decodeBody(t, w)
		if body["message"] != MessageTokenExpired {
			t.Errorf("message = %v, want %q", body["message"], MessageTokenExpired)
		}
		if body["expired_at"] != "2025-06-15 08:00:01" {
			t.Errorf("expired_at = %v, want %q", body["expired_at"], "2025-06-15 08:00:01")
		}
		if n := logs.FilterMessage(SecurityTokenExpired).Len(); n != 1 {
			t.Errorf("期限切れログ件数 = %d, want 1", n)
		}
	})

	t.Run("有効期限ちょうどの時刻ではまだ有効であること", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: base}
		codec := token.NewCodec(testSecret, token.WithTTL(time.Second), token.WithClock(clock.Now))
		issued, err := codec.Issue(clock.Now())
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		clock.Advance(time.Second)

		router, _ := newAuthRouter(t, codec)
		w := doAuthRequest(router, "Bearer "+issued.Token)

		if w.Code != http.StatusTeapot {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTeapot)
		}
	})

	t.Run("expired_atは指定したタイムゾーンで表示されること", func(t *testing.T) {
		t.Parallel()

		jakarta, err := time.LoadLocation("Asia/Jakarta")
		if err != nil {
			t.Skipf("タイムゾーン情報が無い: %v", err)
		}
		expired := token.Encode(base.Add(-time.Hour), strings.Repeat("n", token.NonceLength), testSecret)
		codec := token.NewCodec(testSecret, token.WithClock(func() time.Time { return base }))

		router := gin.New()
		router.Use(TokenAuth(codec, nil, jakarta))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := doAuthRequest(router, "Bearer "+expired)
		if body := decodeBody(t, w); body["expired_at"] != "2025-06-15 14:00:00" {
			t.Errorf("expired_at = %v, want %q", body["expired_at"], "2025-06-15 14:00:00")
		}
	})
}

// TestTokenAuth_SecurityLog は認証監査ログの出力を検証する。
func TestTokenAuth_SecurityLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		authorization string
		wantMessage   string
		wantLevel     zapcore.Level
	}{
		{name: "成功", authorization: "Bearer abc", wantMessage: SecuritySuccessMessage, wantLevel: zapcore.InfoLevel},
		{name: "未送信", authorization: "", wantMessage: SecurityMissingToken, wantLevel: zapcore.WarnLevel},
		{name: "形式不正", authorization: "Bearer ???", wantMessage: SecurityInvalidFormat, wantLevel: zapcore.WarnLevel},
		{
			name:          "シークレット不一致",
			authorization: "Bearer " + token.Encode(time.Now().Add(time.Hour), strings.Repeat("z", token.NonceLength), "nope"),
			wantMessage:   SecurityInvalidSecret,
			wantLevel:     zapcore.WarnLevel,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, logs := newAuthRouter(t, token.NewCodec(testSecret))
			doAuthRequest(router, tt.authorization)

			entries := logs.All()
			if len(entries) != 2 {
				t.Fatalf("監査ログ件数 = %d, want 2", len(entries))
			}
			if entries[0].Message != SecurityAttempt {
				t.Errorf("1件目のメッセージ = %q, want %q", entries[0].Message, SecurityAttempt)
			}
			if got := entries[0].ContextMap()["has_token"]; got != (tt.authorization != "") {
				t.Errorf("has_token = %v, want %v", got, tt.authorization != "")
			}
			if entries[1].Message != tt.wantMessage {
				t.Errorf("2件目のメッセージ = %q, want %q", entries[1].Message, tt.wantMessage)
			}
			if entries[1].Level != tt.wantLevel {
				t.Errorf("2件目のレベル = %v, want %v", entries[1].Level, tt.wantLevel)
			}
		})
	}

	t.Run("成功時はトークン種別が記録されること", func(t *testing.T) {
		t.Parallel()

		router, logs := newAuthRouter(t, token.NewCodec(testSecret))
		doAuthRequest(router, "Bearer abc")

		success := logs.FilterMessage(SecuritySuccessMessage).All()
		if len(success) != 1 {
			t.Fatalf("成功ログ件数 = %d, want 1", len(success))
		}
		if got := success[0].ContextMap()["token_type"]; got != "permanent" {
			t.Errorf("token_type = %v, want %q", got, "permanent")
		}
	})
}

// TestGetTokenType はGetTokenType関数を検証する。
func TestGetTokenType(t *testing.T) {
	t.Parallel()

	t.Run("未設定の場合は空文字列を返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetTokenType(c); got != "" {
			t.Errorf("GetTokenType() = %q, want empty string", got)
		}
	})

	t.Run("文字列以外が設定されている場合は空文字列を返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(ContextKeyTokenType, 1)
		if got := GetTokenType(c); got != "" {
			t.Errorf("GetTokenType() = %q, want empty string", got)
		}
	})
}
