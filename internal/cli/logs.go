package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/khanza-api/internal/logging"
	"github.com/nao1215/khanza-api/internal/logs"
)

// 出力形式。
const (
	outputTable = "table"
	outputJSON  = "json"
	outputCSV   = "csv"
)

// dateLayout は --date の書式。
const dateLayout = "2006-01-02"

func newLogsCmd(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "APIログの解析・監視・削除",
	}
	cmd.AddCommand(newLogsAnalyzeCmd(cli))
	cmd.AddCommand(newLogsMonitorCmd(cli))
	cmd.AddCommand(newLogsClearCmd(cli))
	return cmd
}

type analyzeOptions struct {
	Date   string
	Days   int
	Output string
}

func newLogsAnalyzeCmd(cli *CLI) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "APIの利用状況を集計する",
		Example: `  # 今日の集計
  khanzactl logs analyze

  # 2025-03-15の集計をJSONで出力
  khanzactl logs analyze --date 2025-03-15 --output json

  # 直近7日間の集計をCSVに保存
  khanzactl logs analyze --days 7 --output csv`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runLogsAnalyze(cli, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "集計する日付 (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.Days, "days", 1, "今日を含む直近の日数")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", outputTable, "出力形式 (table, json, csv)")
	return cmd
}

func runLogsAnalyze(cli *CLI, opts analyzeOptions) error {
	switch opts.Output {
	case outputTable, outputJSON, outputCSV:
	default:
		return fmt.Errorf("未知の出力形式: %q (table, json, csv)", opts.Output)
	}

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()
	now := cli.now().In(loc)

	window := logs.LastDaysWindow(now, opts.Days)
	if opts.Date != "" {
		day, err := time.ParseInLocation(dateLayout, opts.Date, loc)
		if err != nil {
			return fmt.Errorf("--date の書式が不正です (YYYY-MM-DD): %w", err)
		}
		window = logs.DayWindow(day)
	}

	stats, err := logs.Analyze(cfg.Log.Dir, window, loc)
	if err != nil {
		return err
	}

	switch opts.Output {
	case outputJSON:
		return logs.WriteJSON(cli.Stdout, stats)
	case outputCSV:
		path, err := logs.WriteCSV(cfg.Log.Dir, stats, now)
		if err != nil {
			return err
		}
		cli.Output("CSVを出力しました: %s", path)
		return nil
	default:
		return logs.WriteTable(cli.Stdout, windowTitle(window), stats)
	}
}

// windowTitle は集計期間の見出しを返す。
func windowTitle(w logs.Window) string {
	last := w.To.AddDate(0, 0, -1)
	if last.Equal(w.From) {
		return "API statistics " + w.From.Format(dateLayout)
	}
	return "API statistics " + w.From.Format(dateLayout) + " - " + last.Format(dateLayout)
}

type monitorOptions struct {
	Channel string
	Filter  string
	Tail    int
}

func newLogsMonitorCmd(cli *CLI) *cobra.Command {
	var opts monitorOptions

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "ログを表示し、追記を監視する",
		Example: `  # apiチャネルを監視
  khanzactl logs monitor

  # 認証ログのうちexpiredを含む行だけを監視
  khanzactl logs monitor --channel api_security --filter expired`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return runLogsMonitor(cmd, cli, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Channel, "channel", "c", logging.ChannelAPI, "監視するチャネル (api, api_errors, api_security)")
	cmd.Flags().StringVarP(&opts.Filter, "filter", "f", "", "この文字列を含む行だけを表示する（大文字小文字を区別しない）")
	cmd.Flags().IntVarP(&opts.Tail, "tail", "n", 50, "最初に表示する末尾の行数")
	return cmd
}

func runLogsMonitor(cmd *cobra.Command, cli *CLI, opts monitorOptions) error {
	if err := logs.ValidateChannel(opts.Channel); err != nil {
		return err
	}
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()
	path := logging.ChannelPath(cfg.Log.Dir, opts.Channel)

	lines, offset, err := logs.Tail(path, opts.Tail, opts.Filter)
	if err != nil {
		return fmt.Errorf("%s の読み込みに失敗: %w", path, err)
	}
	for _, line := range lines {
		cli.Output("%s", logs.FormatLine(line, loc))
	}

	fmt.Fprintf(cli.Stderr, "%s を監視しています（Ctrl+Cで終了）\n", path)
	return logs.Follow(cmd.Context(), path, offset, opts.Filter, func(line string) {
		cli.Output("%s", logs.FormatLine(line, loc))
	})
}

type clearOptions struct {
	Channel string
	Days    int
	Force   bool
}

func newLogsClearCmd(cli *CLI) *cobra.Command {
	var opts clearOptions

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "古いローテーション済みログを削除する",
		Long: `指定日数より前にローテーションされたログを削除する。
現行のログファイルは削除しない。`,
		Example: `  # 30日より前のログを確認の上で削除
  khanzactl logs clear

  # api_securityチャネルの7日より前のログを確認なしで削除
  khanzactl logs clear --channel api_security --days 7 --force`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runLogsClear(cli, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Channel, "channel", "c", "", "対象チャネル（省略時は全チャネル）")
	cmd.Flags().IntVar(&opts.Days, "days", 30, "この日数より前のログを削除する")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "確認せずに削除する")
	return cmd
}

func runLogsClear(cli *CLI, opts clearOptions) error {
	if opts.Days < 0 {
		return errors.New("--days は0以上を指定してください")
	}
	channels := logging.AllChannels
	if opts.Channel != "" {
		channels = []string{opts.Channel}
	}

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()

	cutoff := cli.now().AddDate(0, 0, -opts.Days)
	files, err := logs.FindExpired(cfg.Log.Dir, channels, cutoff)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		cli.Output("%d日より前のログはありません", opts.Days)
		return nil
	}

	cli.Output("%d日より前のログ %d件:", opts.Days, len(files))
	for _, f := range files {
		cli.Output("  %s  %s  %s", f.Name(), f.RotatedAt.In(loc).Format("2006-01-02 15:04:05"), humanize.Bytes(uint64(f.Size)))
	}
	cli.Output("合計 %s", humanize.Bytes(uint64(logs.TotalSize(files))))

	if !opts.Force {
		ok, err := cli.confirm(fmt.Sprintf("%d件のログを削除しますか？", len(files)))
		if err != nil {
			return err
		}
		if !ok {
			cli.Output("削除を中止しました")
			return nil
		}
	}

	removed, err := logs.Remove(files)
	cli.Output("%d件のログを削除しました", removed)
	return err
}
