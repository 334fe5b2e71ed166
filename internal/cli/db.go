package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/khanza-api/internal/store"
)

// dbCheckTimeout はdb checkの全体の待ち時間。
const dbCheckTimeout = 30 * time.Second

func newDBCmd(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "データベースの確認",
	}
	cmd.AddCommand(newDBCheckCmd(cli))
	return cmd
}

func newDBCheckCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "データベースに接続し、テーブルごとの件数を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), dbCheckTimeout)
			defer cancel()
			return runDBCheck(ctx, cli)
		},
	}
}

func runDBCheck(ctx context.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, cfg.Database, cli.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	cli.Output("Connected to: %s (%s)", s.Name(), cfg.Database.Driver)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Table", "Rows")
	for _, name := range store.Tables {
		count, err := s.CountRows(ctx, name)
		if err != nil {
			return err
		}
		t.Row(name, humanize.Comma(count))
	}
	cli.Output("%s", t.String())
	return nil
}
