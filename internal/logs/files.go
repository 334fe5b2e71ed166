// Package logs はAPIログチャネルのファイルを解析・監視・削除する。
//
// 各チャネルは <dir>/<channel>.log が現行ファイルで、lumberjackによって
// <channel>-<UTC時刻>.log（圧縮時は .log.gz）にローテーションされる。
package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/khanza-api/internal/logging"
)

// backupTimeFormat はlumberjackがバックアップ名に埋め込む時刻の書式（UTC）。
const backupTimeFormat = "2006-01-02T15-04-05.000"

// File はチャネルのログファイル1つ。
type File struct {
	// Channel はチャネル名。
	Channel string
	// Path はファイルのパス。
	Path string
	// Size はファイルサイズ（バイト）。
	Size int64
	// ModTime は最終更新時刻。
	ModTime time.Time
	// RotatedAt はローテーションされた時刻。現行ファイルではゼロ値。
	RotatedAt time.Time
	// Compressed はgzip圧縮済みかどうか。
	Compressed bool
}

// Active は現行ファイルかどうかを返す。
func (f File) Active() bool {
	return f.RotatedAt.IsZero()
}

// Name はファイル名を返す。
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// ValidateChannel はチャネル名が既知のものか確認する。
func ValidateChannel(channel string) error {
	if !slices.Contains(logging.AllChannels, channel) {
		return fmt.Errorf("未知のチャネル: %q (%s)", channel, strings.Join(logging.AllChannels, ", "))
	}
	return nil
}

// ChannelFiles はチャネルの現行ファイルとバックアップを古い順に返す。
// ディレクトリやファイルが無い場合は空を返す。
func ChannelFiles(dir, channel string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ログディレクトリの読み込みに失敗: %w", err)
	}

	var (
		backups []File
		active  *File
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		info, err := entry.Info()
		if err != nil {
			continue
		}
		f := File{
			Channel: channel,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		if name == channel+".log" {
			active = &f
			continue
		}
		rotatedAt, compressed, ok := parseBackupName(channel, name)
		if !ok {
			continue
		}
		f.RotatedAt = rotatedAt
		f.Compressed = compressed
		backups = append(backups, f)
	}

	slices.SortFunc(backups, func(a, b File) int {
		return a.RotatedAt.Compare(b.RotatedAt)
	})
	if active != nil {
		backups = append(backups, *active)
	}
	return backups, nil
}

// parseBackupName は <channel>-<時刻>.log[.gz] からローテーション時刻を取り出す。
func parseBackupName(channel, name string) (time.Time, bool, bool) {
	rest, ok := strings.CutPrefix(name, channel+"-")
	if !ok {
		return time.Time{}, false, false
	}

	compressed := false
	if trimmed, ok := strings.CutSuffix(rest, ".gz"); ok {
		rest = trimmed
		compressed = true
	}
	stamp, ok := strings.CutSuffix(rest, ".log")
	if !ok {
		return time.Time{}, false, false
	}

	t, err := time.Parse(backupTimeFormat, stamp)
	if err != nil {
		return time.Time{}, false, false
	}
	return t, compressed, true
}

// BackupName はローテーション時刻に対応するバックアップファイル名を返す。
func BackupName(channel string, rotatedAt time.Time, compressed bool) string {
	name := channel + "-" + rotatedAt.UTC().Format(backupTimeFormat) + ".log"
	if compressed {
		name += ".gz"
	}
	return name
}
