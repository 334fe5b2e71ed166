// Package config はAPIゲートウェイとkhanzactlの設定を読み込む。
//
// 設定はデフォルト値、任意のYAMLファイル、環境変数の順に上書きされる。
// 環境変数名は既存のLaravel版 .env と互換にしてある（API_TOKEN_SECRET, DB_HOST 等）。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zoneinfo の無いイメージ向け

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// データベースドライバ名。
const (
	// DriverMySQL はSIMRS Khanza本番DB用のドライバ。
	DriverMySQL = "mysql"
	// DriverSQLite は開発・テスト用のドライバ。
	DriverSQLite = "sqlite"
)

// Config はアプリケーション全体の設定。
type Config struct {
	// Server はHTTPサーバーの設定。
	Server ServerConfig `mapstructure:"server"`
	// Token はトークン認証の設定。
	Token TokenConfig `mapstructure:"token"`
	// Database はデータベース接続の設定。
	Database DatabaseConfig `mapstructure:"database"`
	// Log はログ出力の設定。
	Log LogConfig `mapstructure:"log"`
	// App はアプリケーション共通の設定。
	App AppConfig `mapstructure:"app"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string `mapstructure:"port"`
	// AllowedOrigins はCORSで許可するオリジン。"*" は全オリジンを許可する。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TokenConfig はトークン認証の設定。
type TokenConfig struct {
	// Secret はAPI_TOKEN_SECRET。永続トークンそのものであり、期限付きトークンにも埋め込まれる。
	Secret string `mapstructure:"secret"`
	// AdminKey はトークン発行エンドポイントで要求する管理キー。
	AdminKey string `mapstructure:"admin_key"`
	// TTL は期限付きトークンの有効期間。0の場合は暦上の1ヶ月。
	TTL time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig はデータベース接続の設定。
type DatabaseConfig struct {
	// Driver は "mysql" または "sqlite"。
	Driver string `mapstructure:"driver"`
	// Host はMySQLのホスト名。
	Host string `mapstructure:"host"`
	// Port はMySQLのポート。
	Port int `mapstructure:"port"`
	// Name はデータベース名。
	Name string `mapstructure:"name"`
	// Username はMySQLのユーザー名。
	Username string `mapstructure:"username"`
	// Password はMySQLのパスワード。
	Password string `mapstructure:"password"`
	// SQLitePath はSQLiteのファイルパス。":memory:" も指定できる。
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	// Dir はログファイルを置くディレクトリ。
	Dir string `mapstructure:"dir"`
	// Level は最小ログレベル（debug, info, warn, error）。
	Level string `mapstructure:"level"`
	// MaxSizeMB はローテーションするファイルサイズ（MB）。
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups は保持するローテーション済みファイル数。
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays はローテーション済みファイルの保持日数。
	MaxAgeDays int `mapstructure:"max_age_days"`
	// Compress はローテーション済みファイルをgzip圧縮するかどうか。
	Compress bool `mapstructure:"compress"`
}

// AppConfig はアプリケーション共通の設定。
type AppConfig struct {
	// Timezone はレスポンスやログで使うタイムゾーン（IANA名）。
	Timezone string `mapstructure:"timezone"`
}

// Default はデフォルト設定を返す。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:     DriverMySQL,
			Host:       "127.0.0.1",
			Port:       3306,
			Name:       "sik",
			Username:   "root",
			SQLitePath: "data/khanza.db",
		},
		Log: LogConfig{
			Dir:        "logs",
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 30,
			MaxAgeDays: 30,
			Compress:   true,
		},
		App: AppConfig{
			Timezone: "Asia/Jakarta",
		},
	}
}

// envBindings は設定キーと環境変数の対応。
var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.allowed_origins":  "CORS_ALLOWED_ORIGINS",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"token.secret":            "API_TOKEN_SECRET",
	"token.admin_key":         "API_ADMIN_KEY",
	"token.ttl":               "API_TOKEN_TTL",
	"database.driver":         "DB_CONNECTION",
	"database.host":           "DB_HOST",
	"database.port":           "DB_PORT",
	"database.name":           "DB_DATABASE",
	"database.username":       "DB_USERNAME",
	"database.password":       "DB_PASSWORD",
	"database.sqlite_path":    "DB_SQLITE_PATH",
	"log.dir":                 "LOG_DIR",
	"log.level":               "LOG_LEVEL",
	"log.max_size_mb":         "LOG_MAX_SIZE_MB",
	"log.max_backups":         "LOG_MAX_BACKUPS",
	"log.max_age_days":        "LOG_MAX_AGE_DAYS",
	"log.compress":            "LOG_COMPRESS",
	"app.timezone":            "APP_TIMEZONE",
}

// Load は設定を読み込んで検証する。pathが空の場合はファイルを読まない。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("環境変数 %s のバインドに失敗: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	cfg.Server.AllowedOrigins = splitOrigins(cfg.Server.AllowedOrigins)
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults はviperにデフォルト値を登録する。
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("token.secret", d.Token.Secret)
	v.SetDefault("token.admin_key", d.Token.AdminKey)
	v.SetDefault("token.ttl", d.Token.TTL)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.username", d.Database.Username)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)

	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("app.timezone", d.App.Timezone)
}

// splitOrigins はカンマ区切りで渡されたオリジンを分解し、空要素を取り除く。
func splitOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver が不正: %q (mysql または sqlite)", c.Database.Driver))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port が空です"))
	}
	if c.Token.TTL < 0 {
		errs = append(errs, fmt.Errorf("token.ttl は0以上である必要があります: %s", c.Token.TTL))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level が不正: %w", err))
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("app.timezone が不正: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("設定の検証に失敗: %w", errors.Join(errs...))
	}
	return nil
}

// Location はapp.timezoneの*time.Locationを返す。検証済みの設定ではエラーにならない。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
