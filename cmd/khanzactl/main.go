// khanzactlのエントリポイント。
// APIログの解析・監視・削除、トークン管理、データベースとAPIの疎通確認を行う。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/nao1215/khanza-api/internal/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args[1:]...); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
