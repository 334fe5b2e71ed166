package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/khanza-api/pkg/httpclient"
)

// 確認結果の表示。
const (
	resultOK   = "OK"
	resultFail = "FAIL"
	resultSkip = "SKIP"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	skipStyle = lipgloss.NewStyle().Faint(true)
)

type smokeOptions struct {
	BaseURL  string
	Token    string
	AdminKey string
	NIK      string
	Timeout  time.Duration
}

// smokeResult は確認1件の結果。
type smokeResult struct {
	Name    string
	Status  int
	Result  string
	Message string
}

func newSmokeCmd(cli *CLI) *cobra.Command {
	var opts smokeOptions

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "起動中のAPIの全エンドポイントを呼び出して確認する",
		Long: `起動中のAPIに対してヘルスチェック、トークン発行・確認、認証の拒否、
各参照エンドポイントを順に呼び出し、期待したステータスが返るか確認する。
--token が無い場合は --admin-key（省略時は API_ADMIN_KEY）でトークンを発行して使う。`,
		Example: `  khanzactl smoke --base-url http://localhost:8080 --admin-key $API_ADMIN_KEY`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSmoke(cmd.Context(), cli, opts)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "APIのベースURL（省略時は http://localhost:<server.port>）")
	cmd.Flags().StringVar(&opts.Token, "token", "", "参照エンドポイントに使うトークン")
	cmd.Flags().StringVar(&opts.AdminKey, "admin-key", "", "トークン発行に使う管理キー")
	cmd.Flags().StringVar(&opts.NIK, "nik", "0", "職員データの確認に使うNIK")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "1リクエストのタイムアウト")
	return cmd
}

func runSmoke(ctx context.Context, cli *CLI, opts smokeOptions) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:" + cfg.Server.Port
	}
	if opts.AdminKey == "" {
		opts.AdminKey = cfg.Token.AdminKey
	}
	now := cli.now().In(cfg.Location())

	client := httpclient.New(opts.BaseURL, httpclient.WithTimeout(opts.Timeout))
	var results []smokeResult

	results = append(results, expect("health", []int{http.StatusOK})(client.Get(ctx, "/api/health", nil)))

	tok := opts.Token
	if opts.AdminKey != "" {
		generated, res := generateToken(ctx, client, opts.AdminKey)
		results = append(results, res)
		if tok == "" {
			tok = generated
		}
	} else {
		results = append(results, smokeResult{Name: "token/generate", Result: resultSkip, Message: "admin key not set"})
	}

	results = append(results, expect("auth rejects missing token", []int{http.StatusUnauthorized})(
		client.Get(ctx, "/api/jns-perawatan", nil)))

	period := url.Values{
		"bulan": {strconv.Itoa(int(now.Month()))},
		"tahun": {strconv.Itoa(now.Year())},
	}
	protected := []struct {
		name  string
		path  string
		query url.Values
		want  []int
	}{
		{"token/check", "/api/token/check", nil, []int{http.StatusOK}},
		{"pegawai", "/api/pegawai", url.Values{"nik": {opts.NIK}}, []int{http.StatusOK, http.StatusNotFound}},
		{"rawat-inap-dr", "/api/rawat-inap-dr", period, []int{http.StatusOK}},
		{"rawat-jl-dr", "/api/rawat-jl-dr", period, []int{http.StatusOK}},
		{"jns-perawatan-inap", "/api/jns-perawatan-inap", nil, []int{http.StatusOK}},
		{"jns-perawatan", "/api/jns-perawatan", nil, []int{http.StatusOK}},
	}
	authed := client.WithToken(tok)
	for _, p := range protected {
		if tok == "" {
			results = append(results, smokeResult{Name: p.name, Result: resultSkip, Message: "no token"})
			continue
		}
		results = append(results, expect(p.name, p.want)(authed.Get(ctx, p.path, p.query)))
	}

	writeSmokeResults(cli, opts.BaseURL, results)

	failed := 0
	for _, r := range results {
		if r.Result == resultFail {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d件の確認に失敗しました", failed)
	}
	return nil
}

// expect はレスポンスのステータスがwantのいずれかかを判定する関数を返す。
func expect(name string, want []int) func(*httpclient.Response, error) smokeResult {
	return func(resp *httpclient.Response, err error) smokeResult {
		if err != nil {
			return smokeResult{Name: name, Result: resultFail, Message: err.Error()}
		}
		res := smokeResult{Name: name, Status: resp.StatusCode, Message: resp.Envelope.Message, Result: resultOK}
		if !slices.Contains(want, resp.StatusCode) {
			res.Result = resultFail
		}
		return res
	}
}

// generateToken は管理キーでトークンを発行する。
func generateToken(ctx context.Context, client *httpclient.Client, adminKey string) (string, smokeResult) {
	var resp struct {
		Message   string `json:"message"`
		Token     string `json:"token"`
		ExpiresIn string `json:"expires_in"`
	}
	res := smokeResult{Name: "token/generate"}

	err := client.PostJSON(ctx, "/api/token/generate", map[string]string{"admin_key": adminKey}, &resp)
	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr):
		res.Status, res.Result, res.Message = statusErr.StatusCode, resultFail, statusErr.Message
		return "", res
	case err != nil:
		res.Result, res.Message = resultFail, err.Error()
		return "", res
	case resp.Token == "":
		res.Status, res.Result, res.Message = http.StatusOK, resultFail, "empty token"
		return "", res
	}

	res.Status, res.Result, res.Message = http.StatusOK, resultOK, fmt.Sprintf("%s (expires in %s)", resp.Message, resp.ExpiresIn)
	return resp.Token, res
}

// writeSmokeResults は確認結果を表形式で書き出す。
func writeSmokeResults(cli *CLI, baseURL string, results []smokeResult) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Check", "Status", "Result", "Message")
	for _, r := range results {
		status := "-"
		if r.Status != 0 {
			status = strconv.Itoa(r.Status)
		}
		t.Row(r.Name, status, resultStyle(r.Result).Render(r.Result), r.Message)
	}
	cli.Output("Smoke test: %s", baseURL)
	cli.Output("%s", t.String())
}

// resultStyle は結果ごとの表示スタイルを返す。
func resultStyle(result string) lipgloss.Style {
	switch result {
	case resultOK:
		return okStyle
	case resultFail:
		return failStyle
	default:
		return skipStyle
	}
}
