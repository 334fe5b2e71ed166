package cli

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/khanza-api/pkg/token"
)

// secretAlphabet はシークレットに使う文字。
const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// minSecretLength はシークレットの最小長。
const minSecretLength = 16

func newTokenCmd(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "トークンとシークレットの管理",
	}
	cmd.AddCommand(newTokenSecretCmd(cli))
	cmd.AddCommand(newTokenIssueCmd(cli))
	return cmd
}

func newTokenSecretCmd(cli *CLI) *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "secret",
		Short: "API_TOKEN_SECRET用のランダムな文字列を生成する",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			secret, err := GenerateSecret(length)
			if err != nil {
				return err
			}
			cli.Output("%s", secret)
			fmt.Fprintf(cli.Stderr, "環境変数に設定してください: API_TOKEN_SECRET=%s\n", secret)
			return nil
		},
	}

	cmd.Flags().IntVarP(&length, "length", "l", 64, "シークレットの長さ")
	return cmd
}

// GenerateSecret は英数字からなる長さlengthのランダムな文字列を生成する。
func GenerateSecret(length int) (string, error) {
	if length < minSecretLength {
		return "", fmt.Errorf("シークレットの長さは%d以上を指定してください: %d", minSecretLength, length)
	}

	// 256を英字数字の数で割り切れる範囲に収まらないバイトは捨てて偏りをなくす。
	limit := byte(256 - 256%len(secretAlphabet))
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("乱数の生成に失敗: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, secretAlphabet[int(b)%len(secretAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

func newTokenIssueCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "issue",
		Short: "設定済みのシークレットで期限付きトークンを発行する",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := cli.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Token.Secret == "" {
				return errors.New("API_TOKEN_SECRET が設定されていません")
			}

			codec := token.NewCodec(cfg.Token.Secret, token.WithTTL(cfg.Token.TTL), token.WithClock(cli.now))
			issued, err := codec.Issue(codec.Now())
			if err != nil {
				return err
			}

			cli.Output("%s", issued.Token)
			fmt.Fprintf(cli.Stderr, "有効期限: %s\n", issued.ExpiresAt.In(cfg.Location()).Format(time.DateTime))
			return nil
		},
	}
}
