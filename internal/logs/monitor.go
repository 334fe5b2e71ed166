package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/nao1215/khanza-api/internal/logging"
)

var (
	timeStyle    = lipgloss.NewStyle().Faint(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	debugStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	slowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// slowResponseMS を超える応答時間は強調表示する。
const slowResponseMS = 1000

// Match はlineがfilterを大文字小文字を区別せずに含むかを返す。filterが空なら常にtrue。
func Match(line, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(line), strings.ToLower(filter))
}

// Tail はファイル末尾のfilterに一致する最大n行と、読み終えた位置を返す。
// ファイルが無い場合は空と0を返す。
func Tail(path string, n int, filter string) ([]string, int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !Match(line, filter) {
			continue
		}
		lines = append(lines, line)
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	if n <= 0 {
		lines = nil
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, err
	}
	return lines, offset, nil
}

// Follow はpathのoffset以降に追記された行のうちfilterに一致するものをfnに渡す。
// ctxがキャンセルされるまで戻らない。ローテーションや切り詰めでファイルが
// 置き換わった場合は先頭から読み直す。
func Follow(ctx context.Context, path string, offset int64, filter string, fn func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ファイル監視の開始に失敗: %w", err)
	}
	defer watcher.Close()

	// ローテーション後の新規作成も拾うためディレクトリを監視する。
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%s の監視に失敗: %w", filepath.Dir(path), err)
	}

	f := &follower{path: path, offset: offset, filter: filter, fn: fn}
	if err := f.read(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				f.offset = 0
				f.partial = ""
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				continue
			}
			if err := f.read(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("ファイル監視でエラー: %w", err)
		}
	}
}

// follower はFollowの読み込み位置と途中行を保持する。
type follower struct {
	path    string
	offset  int64
	filter  string
	fn      func(string)
	partial string
}

// read はoffset以降を読み、完結した行をfnに渡す。
func (f *follower) read() error {
	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < f.offset {
		f.offset = 0
		f.partial = ""
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.offset += int64(len(data))

	text := f.partial + string(data)
	lines := strings.Split(text, "\n")
	f.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if line == "" || !Match(line, f.filter) {
			continue
		}
		f.fn(line)
	}
	return nil
}

// monitorRecord はFormatLineで表示する項目。
type monitorRecord struct {
	Timestamp      string   `json:"timestamp"`
	Level          string   `json:"level"`
	Message        string   `json:"message"`
	Method         string   `json:"method"`
	Path           string   `json:"path"`
	RequestID      string   `json:"request_id"`
	StatusCode     *int     `json:"status_code"`
	ResponseTimeMS *float64 `json:"response_time_ms"`
	IPAddress      string   `json:"ip_address"`
	TokenType      string   `json:"token_type"`
}

// FormatLine はJSONログ1行を色付きの1行に整形する。JSONでない行はそのまま返す。
func FormatLine(line string, loc *time.Location) string {
	var r monitorRecord
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return line
	}
	if loc == nil {
		loc = time.Local
	}

	parts := make([]string, 0, 8)
	if t, err := time.Parse(logging.TimeLayout, r.Timestamp); err == nil {
		parts = append(parts, timeStyle.Render(t.In(loc).Format("15:04:05")))
	}
	parts = append(parts, levelStyle(r.Level).Render(fmt.Sprintf("%-5s", strings.ToUpper(r.Level))), r.Message)

	if r.Method != "" {
		parts = append(parts, r.Method+" /"+strings.TrimPrefix(r.Path, "/"))
	}
	if r.StatusCode != nil {
		style := successStyle
		if *r.StatusCode >= 500 {
			style = errorStyle
		} else if *r.StatusCode >= 400 {
			style = warnStyle
		}
		parts = append(parts, style.Render(fmt.Sprint(*r.StatusCode)))
	}
	if r.ResponseTimeMS != nil {
		style := timeStyle
		if *r.ResponseTimeMS > slowResponseMS {
			style = slowStyle
		}
		parts = append(parts, style.Render(fmt.Sprintf("%.2fms", *r.ResponseTimeMS)))
	}
	if r.TokenType != "" {
		parts = append(parts, "token="+r.TokenType)
	}
	if r.IPAddress != "" {
		parts = append(parts, timeStyle.Render(r.IPAddress))
	}
	return strings.Join(parts, " ")
}

// levelStyle はログレベルごとの表示スタイルを返す。
func levelStyle(level string) lipgloss.Style {
	switch level {
	case "error", "dpanic", "panic", "fatal":
		return errorStyle
	case "warn":
		return warnStyle
	case "debug":
		return debugStyle
	default:
		return infoStyle
	}
}
