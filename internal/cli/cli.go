// Package cli はkhanza-apiの運用コマンド khanzactl を実装する。
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nao1215/khanza-api/internal/config"
)

// CLI はコマンドが共通で使う入出力と依存。
type CLI struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Confirm はyes/noの確認を行う。nilの場合は端末で問い合わせる。
	Confirm func(message string) (bool, error)
	// Now は現在時刻の取得元。nilの場合はtime.Now。
	Now func() time.Time

	// configPath は --config で指定された設定ファイル。
	configPath string
	// verbose は --verbose の値。
	verbose bool
	// logger はstoreなど内部処理のログ出力先。
	logger *zap.Logger
}

// Output はStdoutに1行書き出す。
func (c *CLI) Output(format string, args ...any) {
	fmt.Fprintf(c.Stdout, format+"\n", args...)
}

// now は現在時刻を返す。
func (c *CLI) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// confirm は確認プロンプトを表示する。
func (c *CLI) confirm(message string) (bool, error) {
	if c.Confirm != nil {
		return c.Confirm(message)
	}
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message}, &ok, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr))
	return ok, err
}

// loadConfig は --config と環境変数から設定を読み込む。
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}

// key はコンテキストに格納するCLIのキー型。
type key struct{}

// ctxKey はコンテキストにCLIを格納するキー。
var ctxKey = key{}

// WithCLI はCLIを格納したコンテキストを返す。テストで入出力を差し替えるために使う。
func WithCLI(ctx context.Context, cli *CLI) context.Context {
	return context.WithValue(ctx, ctxKey, cli)
}

// newCLI はコンテキストのCLIを返す。無ければ標準入出力のCLIを生成する。
func newCLI(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(ctxKey).(*CLI); ok {
		return cli
	}
	return &CLI{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run はargsでkhanzactlを実行する。
func Run(ctx context.Context, args ...string) error {
	cli := newCLI(ctx)
	cmd := NewRootCmd(cli)
	cmd.SetArgs(args)
	cmd.SetIn(cli.Stdin)
	cmd.SetOut(cli.Stdout)
	cmd.SetErr(cli.Stderr)
	return cmd.ExecuteContext(ctx)
}

// NewRootCmd はkhanzactlのルートコマンドを生成する。
func NewRootCmd(cli *CLI) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "khanzactl",
		Short:             "khanza-apiの運用コマンド",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if cli.logger != nil {
				return nil
			}
			if !cli.verbose {
				cli.logger = zap.NewNop()
				return nil
			}
			cli.logger = zap.New(zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(cli.Stderr),
				zapcore.DebugLevel,
			))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cli.configPath, "config", "", "設定ファイルのパス（YAML/TOML/JSON）")
	rootCmd.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "内部処理のログを表示する")

	rootCmd.AddCommand(newLogsCmd(cli))
	rootCmd.AddCommand(newTokenCmd(cli))
	rootCmd.AddCommand(newDBCmd(cli))
	rootCmd.AddCommand(newSmokeCmd(cli))
	return rootCmd
}
