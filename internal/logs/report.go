package logs

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

// topN は表形式で表示する上位件数。
const topN = 10

// barWidth は時間帯分布の棒グラフの最大幅。
const barWidth = 40

// csvTimeFormat はCSVファイル名に埋め込む時刻の書式。
const csvTimeFormat = "2006-01-02_15-04-05"

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#3360C6", Dark: "#B1C8FF"})
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0F60FF"))
)

// WriteTable は集計結果を表形式で書き出す。
func WriteTable(w io.Writer, title string, s *Stats) error {
	var b strings.Builder

	b.WriteString(headingStyle.Render(title) + "\n")
	b.WriteString(newTable("Metric", "Value").Rows(
		[]string{"Total requests", humanize.Comma(int64(s.TotalRequests))},
		[]string{"Successful", humanize.Comma(int64(s.SuccessfulRequests))},
		[]string{"Failed", humanize.Comma(int64(s.FailedRequests))},
		[]string{"Success rate", fmt.Sprintf("%.2f%%", s.SuccessRate)},
		[]string{"Avg response time", fmt.Sprintf("%.2f ms", s.AvgResponseTime)},
		[]string{"Min response time", fmt.Sprintf("%.2f ms", s.MinResponseTime)},
		[]string{"Max response time", fmt.Sprintf("%.2f ms", s.MaxResponseTime)},
	).String() + "\n")

	sections := []struct {
		heading string
		key     string
		counts  []Count
	}{
		{"Top endpoints", "Endpoint", Top(s.Endpoints, topN)},
		{"Methods", "Method", Top(s.Methods, 0)},
		{"Status codes", "Status", Sorted(s.StatusCodes)},
		{"Top IP addresses", "IP address", Top(s.IPAddresses, topN)},
		{"Auth types", "Auth type", Top(s.AuthTypes, 0)},
		{"Token types", "Token type", Top(s.TokenTypes, 0)},
	}
	for _, sec := range sections {
		if len(sec.counts) == 0 {
			continue
		}
		t := newTable(sec.key, "Count")
		for _, c := range sec.counts {
			t.Row(c.Key, humanize.Comma(int64(c.Count)))
		}
		b.WriteString("\n" + headingStyle.Render(sec.heading) + "\n")
		b.WriteString(t.String() + "\n")
	}

	if hourly := Sorted(s.HourlyDistribution); len(hourly) > 0 {
		b.WriteString("\n" + headingStyle.Render("Hourly distribution") + "\n")
		peak := Top(s.HourlyDistribution, 1)[0].Count
		for _, c := range hourly {
			width := c.Count * barWidth / peak
			if width == 0 {
				width = 1
			}
			fmt.Fprintf(&b, "%s:00 %s %s\n", c.Key, barStyle.Render(strings.Repeat("█", width)), humanize.Comma(int64(c.Count)))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// newTable は見出し付きの表を生成する。
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// WriteJSON は集計結果をインデント付きJSONで書き出す。
func WriteJSON(w io.Writer, s *Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteCSV は集計結果を dir/api_stats_<時刻>.csv に書き出し、そのパスを返す。
func WriteCSV(dir string, s *Stats, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}
	path := filepath.Join(dir, "api_stats_"+now.Format(csvTimeFormat)+".csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("CSVファイルの作成に失敗: %w", err)
	}
	defer f.Close()

	if err := writeCSV(f, s); err != nil {
		return "", err
	}
	return path, f.Close()
}

// writeCSV は section,key,value の3列で集計結果を書き出す。
func writeCSV(w io.Writer, s *Stats) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "total_requests", strconv.Itoa(s.TotalRequests)},
		{"summary", "successful_requests", strconv.Itoa(s.SuccessfulRequests)},
		{"summary", "failed_requests", strconv.Itoa(s.FailedRequests)},
		{"summary", "success_rate", strconv.FormatFloat(s.SuccessRate, 'f', 2, 64)},
		{"summary", "avg_response_time", strconv.FormatFloat(s.AvgResponseTime, 'f', 2, 64)},
		{"summary", "min_response_time", strconv.FormatFloat(s.MinResponseTime, 'f', 2, 64)},
		{"summary", "max_response_time", strconv.FormatFloat(s.MaxResponseTime, 'f', 2, 64)},
	}
	sections := []struct {
		name string
		m    map[string]int
	}{
		{"endpoints", s.Endpoints},
		{"methods", s.Methods},
		{"status_codes", s.StatusCodes},
		{"ip_addresses", s.IPAddresses},
		{"auth_types", s.AuthTypes},
		{"token_types", s.TokenTypes},
		{"hourly_distribution", s.HourlyDistribution},
	}
	for _, sec := range sections {
		for _, c := range Sorted(sec.m) {
			rows = append(rows, []string{sec.name, c.Key, strconv.Itoa(c.Count)})
		}
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗: %w", err)
	}
	return nil
}
