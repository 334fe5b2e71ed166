// khanza-apiのエントリポイント。
// SIMRS Khanzaのデータベースを読み取り専用で公開するHTTP APIを起動する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nao1215/khanza-api/internal/api"
	"github.com/nao1215/khanza-api/internal/config"
	"github.com/nao1215/khanza-api/internal/logging"
	"github.com/nao1215/khanza-api/internal/store"
)

func main() {
	configPath := flag.String("config", "", "設定ファイルのパス（省略時は環境変数とデフォルト値のみ）")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logs, err := logging.New(cfg.Log, cfg.Location())
	if err != nil {
		return err
	}
	defer logs.Close()

	if cfg.Token.Secret == "" {
		logs.App.Warn("API_TOKEN_SECRET が未設定のため、すべての参照エンドポイントが401を返します")
	}
	if cfg.Token.AdminKey == "" {
		logs.App.Warn("API_ADMIN_KEY が未設定のため、トークンを発行できません")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.Database, logs.App)
	if err != nil {
		logs.App.Error("データベースへの接続に失敗", zap.Error(err))
		return err
	}
	defer s.Close()
	logs.App.Info("データベースに接続しました",
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", s.Name()))

	server := api.NewServer(cfg, s, logs)
	if err := server.Run(ctx); err != nil {
		logs.App.Error("APIサーバーが異常終了しました", zap.Error(err))
		return err
	}
	logs.App.Info("APIサーバーを停止しました")
	return nil
}
