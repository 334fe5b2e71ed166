package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testNow はテストで固定する現在時刻。
var testNow = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

// testEnv はテスト用のCLIと設定ファイル。
type testEnv struct {
	cli    *CLI
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	config string
	logDir string
	dbPath string
}

// newTestEnv は一時ディレクトリに設定ファイルを作成し、出力をバッファに向けたCLIを返す。
// secretが空の場合は token.secret を設定しない。
func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		config: filepath.Join(dir, "config.yaml"),
		logDir: filepath.Join(dir, "logs"),
		dbPath: filepath.Join(dir, "data", "khanza.db"),
	}
	env.cli = &CLI{
		Stdin:  strings.NewReader(""),
		Stdout: env.stdout,
		Stderr: env.stderr,
		Now:    func() time.Time { return testNow },
		Confirm: func(string) (bool, error) {
			return false, fmt.Errorf("確認プロンプトは想定外")
		},
	}

	content := fmt.Sprintf(`
server:
  port: "18080"
token:
  secret: %q
  admin_key: "admin-key"
database:
  driver: sqlite
  sqlite_path: %q
log:
  dir: %q
app:
  timezone: UTC
`, secret, env.dbPath, env.logDir)
	require.NoError(t, os.WriteFile(env.config, []byte(content), 0o600))
	require.NoError(t, os.MkdirAll(env.logDir, 0o755))
	return env
}

// run はkhanzactlを --config 付きで実行する。
func (e *testEnv) run(ctx context.Context, args ...string) error {
	return Run(WithCLI(ctx, e.cli), append([]string{"--config", e.config}, args...)...)
}
