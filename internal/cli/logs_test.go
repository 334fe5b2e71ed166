package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/khanza-api/internal/logs"
)

// apiLogLines はtestNowの日付のapiチャネルのログ。
var apiLogLines = []string{
	`{"timestamp":"2025-03-15T08:00:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/pegawai","ip_address":"10.0.0.1","request_id":"api_1","auth_type":"Bearer Token"}`,
	`{"timestamp":"2025-03-15T08:00:00.010Z","level":"info","message":"API Response","request_id":"api_1","status_code":200,"response_time_ms":10}`,
	`{"timestamp":"2025-03-15T09:00:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/jns-perawatan","ip_address":"10.0.0.2","request_id":"api_2","auth_type":"None"}`,
	`{"timestamp":"2025-03-15T09:00:00.002Z","level":"warn","message":"API Response","request_id":"api_2","status_code":401,"response_time_ms":2}`,
	`{"timestamp":"2025-03-14T09:00:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/health","ip_address":"10.0.0.3","request_id":"api_0","auth_type":"None"}`,
	`{"timestamp":"2025-03-14T09:00:00.001Z","level":"info","message":"API Response","request_id":"api_0","status_code":200,"response_time_ms":1}`,
}

// writeLog はログディレクトリにファイルを書き込む。
func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestLogsAnalyzeCmd(t *testing.T) {
	t.Parallel()

	t.Run("JSONで今日の集計を出力すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		writeLog(t, env.logDir, "api.log", apiLogLines...)

		require.NoError(t, env.run(context.Background(), "logs", "analyze", "--output", "json"))

		var stats logs.Stats
		require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &stats))
		assert.Equal(t, 2, stats.TotalRequests)
		assert.Equal(t, 1, stats.SuccessfulRequests)
		assert.Equal(t, 1, stats.FailedRequests)
		assert.Equal(t, map[string]int{"api/pegawai": 1, "api/jns-perawatan": 1}, stats.Endpoints)
	})

	t.Run("--daysで過去の日も集計すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		writeLog(t, env.logDir, "api.log", apiLogLines...)

		require.NoError(t, env.run(context.Background(), "logs", "analyze", "--days", "2", "-o", "json"))

		var stats logs.Stats
		require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &stats))
		assert.Equal(t, 3, stats.TotalRequests)
	})

	t.Run("--dateで指定日の集計を表形式で出力すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		writeLog(t, env.logDir, "api.log", apiLogLines...)

		require.NoError(t, env.run(context.Background(), "logs", "analyze", "--date", "2025-03-14"))

		out := env.stdout.String()
		assert.Contains(t, out, "API statistics 2025-03-14")
		assert.Contains(t, out, "api/health")
		assert.NotContains(t, out, "api/pegawai")
	})

	t.Run("CSVをログディレクトリに出力すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		writeLog(t, env.logDir, "api.log", apiLogLines...)

		require.NoError(t, env.run(context.Background(), "logs", "analyze", "--output", "csv"))

		path := filepath.Join(env.logDir, "api_stats_2025-03-15_09-30-00.csv")
		assert.FileExists(t, path)
		assert.Contains(t, env.stdout.String(), path)
	})

	t.Run("不正な引数はエラーになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		assert.Error(t, env.run(context.Background(), "logs", "analyze", "--output", "xml"))
		assert.Error(t, env.run(context.Background(), "logs", "analyze", "--date", "15/03/2025"))
	})
}

func TestLogsClearCmd(t *testing.T) {
	t.Parallel()

	// seedBackups は40日前と10日前のバックアップ、現行ファイルを作成する。
	seedBackups := func(t *testing.T, env *testEnv) (old, recent, active string) {
		t.Helper()

		old = writeLog(t, env.logDir, logs.BackupName("api", testNow.AddDate(0, 0, -40), false), `{}`)
		recent = writeLog(t, env.logDir, logs.BackupName("api_security", testNow.AddDate(0, 0, -10), false), `{}`)
		active = writeLog(t, env.logDir, "api.log", `{}`)
		return old, recent, active
	}

	t.Run("--forceで確認せずに期限切れのバックアップだけを削除すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		old, recent, active := seedBackups(t, env)

		require.NoError(t, env.run(context.Background(), "logs", "clear", "--force"))

		assert.NoFileExists(t, old)
		assert.FileExists(t, recent)
		assert.FileExists(t, active)
		assert.Contains(t, env.stdout.String(), filepath.Base(old))
		assert.Contains(t, env.stdout.String(), "1件のログを削除しました")
	})

	t.Run("確認で拒否した場合は削除しないこと", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		old, _, _ := seedBackups(t, env)
		var asked string
		env.cli.Confirm = func(msg string) (bool, error) {
			asked = msg
			return false, nil
		}

		require.NoError(t, env.run(context.Background(), "logs", "clear"))

		assert.FileExists(t, old)
		assert.Contains(t, asked, "1件")
		assert.Contains(t, env.stdout.String(), "削除を中止しました")
	})

	t.Run("確認で承認した場合は削除すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		_, recent, _ := seedBackups(t, env)
		env.cli.Confirm = func(string) (bool, error) { return true, nil }

		require.NoError(t, env.run(context.Background(), "logs", "clear", "--channel", "api_security", "--days", "7"))

		assert.NoFileExists(t, recent)
	})

	t.Run("対象が無い場合はその旨を表示すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		seedBackups(t, env)

		require.NoError(t, env.run(context.Background(), "logs", "clear", "--days", "90"))
		assert.Contains(t, env.stdout.String(), "90日より前のログはありません")
	})

	t.Run("未知のチャネルはエラーになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		assert.Error(t, env.run(context.Background(), "logs", "clear", "--channel", "laravel", "--force"))
	})
}

func TestLogsMonitorCmd(t *testing.T) {
	t.Parallel()

	t.Run("末尾の行を整形して表示し、キャンセルで終了すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		writeLog(t, env.logDir, "api.log", apiLogLines...)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, env.run(ctx, "logs", "monitor", "--tail", "2", "--filter", "api_2"))

		lines := strings.Split(strings.TrimSpace(env.stdout.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "09:00:00")
		assert.Contains(t, lines[0], "GET /api/jns-perawatan")
		assert.Contains(t, lines[1], "401")
		assert.Contains(t, env.stderr.String(), "api.log")
	})

	t.Run("追記された行を表示すること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		path := writeLog(t, env.logDir, "api_security.log", `{"timestamp":"2025-03-15T09:00:00.000Z","level":"info","message":"API Authentication Attempt"}`)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- env.run(ctx, "logs", "monitor", "--channel", "api_security", "--tail", "0") }()

		time.Sleep(200 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString(`{"timestamp":"2025-03-15T09:00:01.000Z","level":"warn","message":"Authentication Failed: Token Expired"}` + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		// 標準出力は監視goroutineが書き込むため、キャンセル後に検証する。
		time.Sleep(500 * time.Millisecond)
		cancel()
		require.NoError(t, <-done)
		assert.Contains(t, env.stdout.String(), "Token Expired")
		assert.NotContains(t, env.stdout.String(), "Authentication Attempt")
	})

	t.Run("未知のチャネルはエラーになること", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, "")
		assert.Error(t, env.run(context.Background(), "logs", "monitor", "--channel", "laravel"))
	})
}
