package logs

import (
	"bufio"
	"cmp"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/nao1215/khanza-api/internal/logging"
	"github.com/nao1215/khanza-api/pkg/middleware"
)

// maxLineSize はログ1行の最大長。
const maxLineSize = 4 << 20

// Window は解析対象の期間 [From, To)。
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow は指定日の0時から翌日0時までの期間を返す。
func DayWindow(day time.Time) Window {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Window{From: start, To: start.AddDate(0, 0, 1)}
}

// LastDaysWindow は今日を含む直近days日間の期間を返す。
func LastDaysWindow(now time.Time, days int) Window {
	if days < 1 {
		days = 1
	}
	today := DayWindow(now)
	return Window{From: today.From.AddDate(0, 0, -(days - 1)), To: today.To}
}

// Contains はtが期間内かどうかを返す。
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Count は集計のキーと件数。
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Stats はapiチャネルの集計結果。
type Stats struct {
	TotalRequests      int            `json:"total_requests"`
	SuccessfulRequests int            `json:"successful_requests"`
	FailedRequests     int            `json:"failed_requests"`
	SuccessRate        float64        `json:"success_rate"`
	AvgResponseTime    float64        `json:"avg_response_time"`
	MaxResponseTime    float64        `json:"max_response_time"`
	MinResponseTime    float64        `json:"min_response_time"`
	Endpoints          map[string]int `json:"endpoints"`
	Methods            map[string]int `json:"methods"`
	StatusCodes        map[string]int `json:"status_codes"`
	IPAddresses        map[string]int `json:"ip_addresses"`
	AuthTypes          map[string]int `json:"auth_types"`
	TokenTypes         map[string]int `json:"token_types"`
	HourlyDistribution map[string]int `json:"hourly_distribution"`

	// responseTimeSum は平均算出用の合計。
	responseTimeSum float64
	// timed はresponse_time_msを持つレスポンス数。
	timed int
}

// newStats は空の集計結果を生成する。
func newStats() *Stats {
	return &Stats{
		Endpoints:          map[string]int{},
		Methods:            map[string]int{},
		StatusCodes:        map[string]int{},
		IPAddresses:        map[string]int{},
		AuthTypes:          map[string]int{},
		TokenTypes:         map[string]int{},
		HourlyDistribution: map[string]int{},
	}
}

// record はログ1行のうち集計に使う項目。
type record struct {
	Timestamp      string   `json:"timestamp"`
	Message        string   `json:"message"`
	Method         string   `json:"method"`
	Path           string   `json:"path"`
	IPAddress      string   `json:"ip_address"`
	RequestID      string   `json:"request_id"`
	AuthType       string   `json:"auth_type"`
	StatusCode     *int     `json:"status_code"`
	ResponseTimeMS *float64 `json:"response_time_ms"`
	TokenType      string   `json:"token_type"`
}

// time はtimestampを解釈する。解釈できない場合はゼロ値。
func (r record) time() time.Time {
	t, err := time.Parse(logging.TimeLayout, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// requestInfo はレスポンスと突き合わせるリクエスト側の情報。
type requestInfo struct {
	method   string
	path     string
	ip       string
	authType string
}

// Analyze はdir配下のapiチャネルとapi_securityチャネルから期間内の利用状況を集計する。
// 時間帯の集計はloc基準で行う。
func Analyze(dir string, window Window, loc *time.Location) (*Stats, error) {
	if loc == nil {
		loc = time.Local
	}
	stats := newStats()

	requests := map[string]requestInfo{}
	err := scanChannel(dir, logging.ChannelAPI, window, func(r record, at time.Time) {
		switch r.Message {
		case middleware.MessageAPIRequest:
			requests[r.RequestID] = requestInfo{method: r.Method, path: r.Path, ip: r.IPAddress, authType: r.AuthType}
		case middleware.MessageAPIResponse:
			stats.addResponse(r, requests[r.RequestID], at.In(loc))
			delete(requests, r.RequestID)
		}
	})
	if err != nil {
		return nil, err
	}

	err = scanChannel(dir, logging.ChannelSecurity, window, func(r record, _ time.Time) {
		if r.Message == middleware.SecuritySuccessMessage && r.TokenType != "" {
			stats.TokenTypes[r.TokenType]++
		}
	})
	if err != nil {
		return nil, err
	}

	stats.finish()
	return stats, nil
}

// addResponse はレスポンス1件を集計に加える。
func (s *Stats) addResponse(r record, req requestInfo, at time.Time) {
	s.TotalRequests++

	if r.StatusCode != nil {
		code := *r.StatusCode
		s.StatusCodes[fmt.Sprint(code)]++
		if code >= 200 && code < 300 {
			s.SuccessfulRequests++
		} else {
			s.FailedRequests++
		}
	}

	if r.ResponseTimeMS != nil {
		ms := *r.ResponseTimeMS
		if s.timed == 0 {
			s.MinResponseTime, s.MaxResponseTime = ms, ms
		}
		s.MinResponseTime = min(s.MinResponseTime, ms)
		s.MaxResponseTime = max(s.MaxResponseTime, ms)
		s.responseTimeSum += ms
		s.timed++
	}

	if req.path != "" {
		s.Endpoints[req.path]++
	}
	if req.method != "" {
		s.Methods[req.method]++
	}
	if req.ip != "" {
		s.IPAddresses[req.ip]++
	}
	if req.authType != "" {
		s.AuthTypes[req.authType]++
	}
	s.HourlyDistribution[at.Format("15")]++
}

// finish は平均と成功率を確定する。
func (s *Stats) finish() {
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
	}
	if s.timed > 0 {
		s.AvgResponseTime = s.responseTimeSum / float64(s.timed)
	}
}

// Top は件数の多い順に最大n件を返す。同数はキー順。nが0以下なら全件。
func Top(m map[string]int, n int) []Count {
	counts := make([]Count, 0, len(m))
	for k, v := range m {
		counts = append(counts, Count{Key: k, Count: v})
	}
	slices.SortFunc(counts, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// Sorted はキー順に全件を返す。
func Sorted(m map[string]int) []Count {
	counts := make([]Count, 0, len(m))
	for k, v := range m {
		counts = append(counts, Count{Key: k, Count: v})
	}
	slices.SortFunc(counts, func(a, b Count) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return counts
}

// scanChannel はチャネルのファイルを古い順に読み、期間内のレコードをfnに渡す。
// 期間開始より前にローテーションされたバックアップは読まない。
func scanChannel(dir, channel string, window Window, fn func(record, time.Time)) error {
	files, err := ChannelFiles(dir, channel)
	if err != nil {
		return err
	}
	for _, f := range files {
		if !f.Active() && f.RotatedAt.Before(window.From) {
			continue
		}
		if err := scanFile(f, window, fn); err != nil {
			return fmt.Errorf("%s の読み込みに失敗: %w", f.Name(), err)
		}
	}
	return nil
}

// scanFile はファイル1つを1行ずつJSONとして解釈する。解釈できない行は読み飛ばす。
func scanFile(f File, window Window, fn func(record, time.Time)) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if f.Compressed {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		at := rec.time()
		if at.IsZero() || !window.Contains(at) {
			continue
		}
		fn(rec, at)
	}
	return scanner.Err()
}
