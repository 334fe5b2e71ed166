// Package logging はアプリケーションログとAPIログチャネルを構築する。
//
// アプリケーションログは標準出力へ、APIアクティビティ（api）、エラーレスポンス
// （api_errors）、認証監査（api_security）はそれぞれ別ファイルへJSONで出力し、
// lumberjackでサイズ・世代・日数によるローテーションを行う。
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nao1215/khanza-api/internal/config"
)

// ログチャネル名。ファイル名は <チャネル名>.log になる。
const (
	// ChannelAPI はリクエスト・レスポンスのアクティビティログ。
	ChannelAPI = "api"
	// ChannelErrors はステータス400以上のレスポンスのログ。
	ChannelErrors = "api_errors"
	// ChannelSecurity は認証試行の監査ログ。
	ChannelSecurity = "api_security"
)

// AllChannels はファイル出力する全チャネル。
var AllChannels = []string{ChannelAPI, ChannelErrors, ChannelSecurity}

// TimeLayout はログのtimestampフィールドの書式。
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// flushInterval はファイルチャネルのバッファを書き出す間隔。
const flushInterval = time.Second

// ChannelPath はチャネルの現行ログファイルのパスを返す。
func ChannelPath(dir, channel string) string {
	return filepath.Join(dir, channel+".log")
}

// Loggers はアプリケーションが使うロガー一式。
type Loggers struct {
	// App は標準出力へのアプリケーションログ。
	App *zap.Logger
	// API はapiチャネル。
	API *zap.Logger
	// Errors はapi_errorsチャネル。
	Errors *zap.Logger
	// Security はapi_securityチャネル。
	Security *zap.Logger

	// stops はファイルチャネルの終了処理。
	stops []func() error
}

// New は設定からロガー一式を構築する。locはtimestampのタイムゾーン。
func New(cfg config.LogConfig, loc *time.Location) (*Loggers, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("ログレベルの解析に失敗: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("ログディレクトリ %s の作成に失敗: %w", cfg.Dir, err)
	}

	l := &Loggers{App: newAppLogger(level, loc)}

	files := make(map[string]*zap.Logger, len(AllChannels))
	for _, channel := range AllChannels {
		logger, stop := newFileLogger(cfg, channel, loc)
		files[channel] = logger
		l.stops = append(l.stops, stop)
	}
	l.API = files[ChannelAPI]
	l.Errors = files[ChannelErrors]
	l.Security = files[ChannelSecurity]

	return l, nil
}

// Nop は何も出力しないロガー一式を返す。テストで使用する。
func Nop() *Loggers {
	return &Loggers{
		App:      zap.NewNop(),
		API:      zap.NewNop(),
		Errors:   zap.NewNop(),
		Security: zap.NewNop(),
	}
}

// Close はバッファを書き出し、ログファイルを閉じる。
func (l *Loggers) Close() error {
	_ = l.App.Sync() //nolint:errcheck // 標準出力のSyncはEINVALを返すことがある

	var errs []error
	for _, stop := range l.stops {
		if err := stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// encoderConfig はファイルチャネルとJSON出力で共通のエンコーダ設定を返す。
func encoderConfig(loc *time.Location) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder(loc),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// timeEncoder はlocに変換してTimeLayoutで書き出すエンコーダを返す。
func timeEncoder(loc *time.Location) zapcore.TimeEncoder {
	return func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(loc).Format(TimeLayout))
	}
}

// newAppLogger は標準出力へのロガーを生成する。端末ではカラー付きのコンソール形式にする。
func newAppLogger(level zapcore.Level, loc *time.Location) *zap.Logger {
	var (
		encoder zapcore.Encoder
		writer  zapcore.WriteSyncer
	)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		encCfg := encoderConfig(loc)
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
		writer = zapcore.Lock(os.Stderr)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig(loc))
		writer = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, writer, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// newFileLogger はローテーション付きのファイルチャネルを生成する。
// 書き込みはバッファ経由で行い、リクエスト処理がディスクI/Oで止まらないようにする。
func newFileLogger(cfg config.LogConfig, channel string, loc *time.Location) (*zap.Logger, func() error) {
	rotator := &lumberjack.Logger{
		Filename:   ChannelPath(cfg.Dir, channel),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	ws := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(rotator),
		FlushInterval: flushInterval,
	}

	// APIチャネルはlog.levelに関係なくINFO以上を残す
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig(loc)), ws, zapcore.InfoLevel)

	stop := func() error {
		return errors.Join(ws.Stop(), rotator.Close())
	}
	return zap.New(core), stop
}
