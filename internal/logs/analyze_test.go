package logs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedLogs は集計用のログファイルを作成する。
//
// 現行ファイルに3リクエスト、3月15日10時にローテーションされた圧縮バックアップに
// 1リクエスト、3月1日のバックアップに期間外の1リクエストを置く。
func seedLogs(t *testing.T, dir string) {
	t.Helper()

	writeLines(t, filepath.Join(dir, "api.log"),
		`{"timestamp":"2025-03-15T11:00:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/pegawai","ip_address":"10.0.0.1","request_id":"api_b","auth_type":"Bearer Token"}`,
		`{"timestamp":"2025-03-15T11:00:00.020Z","level":"info","message":"API Response","request_id":"api_b","status_code":200,"response_time_ms":20}`,
		`not json`,
		`{"timestamp":"2025-03-15T11:05:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/pegawai","ip_address":"10.0.0.2","request_id":"api_c","auth_type":"None"}`,
		`{"timestamp":"2025-03-15T11:05:00.005Z","level":"warn","message":"API Response","request_id":"api_c","status_code":401,"response_time_ms":5}`,
		`{"timestamp":"2025-03-15T12:00:00.000Z","level":"info","message":"API Request","method":"POST","path":"api/token/generate","ip_address":"10.0.0.1","request_id":"api_d","auth_type":"None"}`,
		`{"timestamp":"2025-03-15T12:00:00.035Z","level":"info","message":"API Response","request_id":"api_d","status_code":200,"response_time_ms":35}`,
		`{"timestamp":"2025-03-16T00:00:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/health","ip_address":"10.0.0.3","request_id":"api_e","auth_type":"None"}`,
		`{"timestamp":"2025-03-16T00:00:00.001Z","level":"info","message":"API Response","request_id":"api_e","status_code":200,"response_time_ms":1}`,
	)
	writeGzip(t, filepath.Join(dir, BackupName("api", time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC), true)),
		`{"timestamp":"2025-03-15T09:00:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/rawat-inap-dr","ip_address":"10.0.0.1","request_id":"api_a","auth_type":"Bearer Token"}`,
		`{"timestamp":"2025-03-15T09:00:00.100Z","level":"error","message":"API Response","request_id":"api_a","status_code":500,"response_time_ms":100}`,
	)
	writeLines(t, filepath.Join(dir, BackupName("api", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), false)),
		`{"timestamp":"2025-03-15T09:30:00.000Z","level":"info","message":"API Request","method":"GET","path":"api/stale","ip_address":"10.9.9.9","request_id":"api_z","auth_type":"None"}`,
		`{"timestamp":"2025-03-15T09:30:00.001Z","level":"info","message":"API Response","request_id":"api_z","status_code":200,"response_time_ms":1}`,
	)
	writeLines(t, filepath.Join(dir, "api_security.log"),
		`{"timestamp":"2025-03-15T09:00:00.000Z","level":"info","message":"Authentication Successful","token_type":"permanent"}`,
		`{"timestamp":"2025-03-15T11:00:00.000Z","level":"info","message":"Authentication Successful","token_type":"expiring"}`,
		`{"timestamp":"2025-03-15T11:05:00.000Z","level":"warn","message":"Authentication Failed: Missing Token"}`,
		`{"timestamp":"2025-03-14T11:00:00.000Z","level":"info","message":"Authentication Successful","token_type":"expiring"}`,
	)
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	t.Run("期間内のリクエストとレスポンスを集計すること", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		seedLogs(t, dir)

		day := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
		stats, err := Analyze(dir, DayWindow(day), time.UTC)
		require.NoError(t, err)

		assert.Equal(t, 4, stats.TotalRequests)
		assert.Equal(t, 2, stats.SuccessfulRequests)
		assert.Equal(t, 2, stats.FailedRequests)
		assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)
		assert.InDelta(t, 40.0, stats.AvgResponseTime, 0.001)
		assert.InDelta(t, 5.0, stats.MinResponseTime, 0.001)
		assert.InDelta(t, 100.0, stats.MaxResponseTime, 0.001)

		assert.Equal(t, map[string]int{"api/pegawai": 2, "api/rawat-inap-dr": 1, "api/token/generate": 1}, stats.Endpoints)
		assert.Equal(t, map[string]int{"GET": 3, "POST": 1}, stats.Methods)
		assert.Equal(t, map[string]int{"200": 2, "401": 1, "500": 1}, stats.StatusCodes)
		assert.Equal(t, map[string]int{"10.0.0.1": 3, "10.0.0.2": 1}, stats.IPAddresses)
		assert.Equal(t, map[string]int{"Bearer Token": 2, "None": 2}, stats.AuthTypes)
		assert.Equal(t, map[string]int{"permanent": 1, "expiring": 1}, stats.TokenTypes)
		assert.Equal(t, map[string]int{"09": 1, "11": 2, "12": 1}, stats.HourlyDistribution)
	})

	t.Run("時間帯はタイムゾーン基準で集計すること", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		seedLogs(t, dir)

		jakarta := time.FixedZone("WIB", 7*60*60)
		window := Window{
			From: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC),
		}
		stats, err := Analyze(dir, window, jakarta)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"16": 1, "18": 2, "19": 1}, stats.HourlyDistribution)
	})

	t.Run("ログが無い場合はゼロの集計を返すこと", func(t *testing.T) {
		t.Parallel()

		stats, err := Analyze(t.TempDir(), LastDaysWindow(time.Now(), 7), time.UTC)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalRequests)
		assert.Zero(t, stats.SuccessRate)
		assert.Zero(t, stats.AvgResponseTime)
		assert.NotNil(t, stats.Endpoints)
	})
}

func TestLastDaysWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 15, 13, 45, 0, 0, time.UTC)

	w := LastDaysWindow(now, 7)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), w.To)
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(w.To))

	assert.Equal(t, DayWindow(now), LastDaysWindow(now, 0))
}

func TestTop(t *testing.T) {
	t.Parallel()

	m := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}

	assert.Equal(t, []Count{{"c", 5}, {"a", 2}}, Top(m, 2))
	assert.Len(t, Top(m, 0), 4)
	assert.Equal(t, []Count{{"a", 2}, {"b", 2}, {"c", 5}, {"d", 1}}, Sorted(m))
}
