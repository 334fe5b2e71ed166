package logs

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// FindExpired はchannelsのバックアップのうちcutoffより前にローテーションされたものを返す。
// 現行ファイルは対象にしない。
func FindExpired(dir string, channels []string, cutoff time.Time) ([]File, error) {
	var expired []File
	for _, channel := range channels {
		if err := ValidateChannel(channel); err != nil {
			return nil, err
		}
		files, err := ChannelFiles(dir, channel)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.Active() || !f.RotatedAt.Before(cutoff) {
				continue
			}
			expired = append(expired, f)
		}
	}
	return expired, nil
}

// TotalSize はファイルサイズの合計を返す。
func TotalSize(files []File) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

// Remove はファイルを削除し、削除できた件数を返す。
func Remove(files []File) (int, error) {
	var (
		removed int
		errs    []error
	)
	for _, f := range files {
		if f.Active() {
			errs = append(errs, fmt.Errorf("%s は現行ファイルのため削除できません", f.Name()))
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			errs = append(errs, fmt.Errorf("%s の削除に失敗: %w", f.Name(), err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
