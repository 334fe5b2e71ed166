// Package store はSIMRS Khanzaデータベースへの読み取り専用アクセスを提供する。
//
// 本番ではMySQL、開発・テストではSQLiteを使う。SQLiteの場合のみ
// 埋め込みマイグレーションでテーブルを作成する。
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/khanza-api/internal/config"
	"github.com/nao1215/khanza-api/pkg/migration"
)

// ErrNotFound は該当する行が存在しないことを表す。
var ErrNotFound = errors.New("該当するデータが見つかりません")

//go:embed migrations/*.up.sql
var migrations embed.FS

// Tables はAPIが参照するテーブル名。CountRowsで受け付けるのはこれだけ。
var Tables = []string{"pegawai", "rawat_inap_dr", "rawat_jl_dr", "jns_perawatan_inap", "jns_perawatan"}

// Store はKhanzaデータベースへの問い合わせを行う。
type Store struct {
	// db はsqlxのデータベース接続。
	db *sqlx.DB
	// name は接続先データベース名。ヘルスチェックの表示に使う。
	name string
}

// New は既存の接続からStoreを生成する。
func New(db *sqlx.DB, name string) *Store {
	return &Store{db: db, name: name}
}

// Open は設定に従ってデータベースへ接続する。
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		return openMySQL(ctx, cfg)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("未対応のデータベースドライバ: %q", cfg.Driver)
	}
}

// openMySQL はSIMRS KhanzaのMySQLへ接続する。
func openMySQL(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Timeout = 5 * time.Second

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("MySQL接続設定が不正: %w", err)
	}

	db := sqlx.NewDb(sql.OpenDB(connector), "mysql")
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	return New(db, cfg.Name), nil
}

// openSQLite は開発用のSQLiteを開き、マイグレーションを適用する。
func openSQLite(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	dsn := cfg.SQLitePath
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("データベースディレクトリの作成に失敗: %w", err)
		}
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// :memory: は接続ごとに別DBになるため1接続に固定する
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db.DB, migrations, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return New(db, filepath.Base(cfg.SQLitePath)), nil
}

// DB は内部のsqlx接続を返す。テストデータの投入に使う。
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Name は接続先データベース名を返す。
func (s *Store) Name() string {
	return s.name
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const pegawaiColumns = `id, nik, nama, jk, jbtn, jnj_jabatan, kode_kelompok, kode_resiko,
	kode_emergency, departemen, bidang, stts_wp, stts_kerja, npwp, pendidikan, gapok,
	tmp_lahir, tgl_lahir, alamat, kota, mulai_kerja, ms_kerja, indexins, bpd, rekening, stts_aktif`

const rawatInapDrColumns = `no_rawat, kd_jenis_prw, kd_dokter, tgl_perawatan, jam_rawat,
	material, bhp, tarif_tindakandr, kso, menejemen, biaya_rawat`

const rawatJlDrColumns = rawatInapDrColumns + `, stts_bayar`

const jnsPerawatanColumns = `kd_jenis_prw, nm_perawatan, kd_kategori, material, bhp,
	tarif_tindakandr, tarif_tindakanpr, kso, menejemen, total_byrdr, total_byrpr,
	total_byrdrpr, kd_pj, kd_poli, status`

const jnsPerawatanInapColumns = `kd_jenis_prw, nm_perawatan, kd_kategori, material, bhp,
	tarif_tindakandr, tarif_tindakanpr, kso, menejemen, total_byrdr, total_byrpr,
	total_byrdrpr, kd_pj, kd_bangsal, status, kelas`

// FindPegawaiByNIK はNIKで職員を1件取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) FindPegawaiByNIK(ctx context.Context, nik string) (Pegawai, error) {
	var p Pegawai
	err := s.db.GetContext(ctx, &p, `SELECT `+pegawaiColumns+` FROM pegawai WHERE nik = ? LIMIT 1`, nik)
	if errors.Is(err, sql.ErrNoRows) {
		return Pegawai{}, ErrNotFound
	}
	if err != nil {
		return Pegawai{}, fmt.Errorf("pegawaiの取得に失敗: %w", err)
	}
	return p, nil
}

// ListRawatInapDr は指定年月の入院医師処置を処置日の新しい順に返す。
func (s *Store) ListRawatInapDr(ctx context.Context, year, month int) ([]RawatInapDr, error) {
	from, to := monthRange(year, month)
	rows := []RawatInapDr{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+rawatInapDrColumns+` FROM rawat_inap_dr
		WHERE tgl_perawatan >= ? AND tgl_perawatan < ?
		ORDER BY tgl_perawatan DESC, jam_rawat DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("rawat_inap_drの取得に失敗: %w", err)
	}
	return rows, nil
}

// ListRawatJlDr は指定年月の外来医師処置を処置日の新しい順に返す。
func (s *Store) ListRawatJlDr(ctx context.Context, year, month int) ([]RawatJlDr, error) {
	from, to := monthRange(year, month)
	rows := []RawatJlDr{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+rawatJlDrColumns+` FROM rawat_jl_dr
		WHERE tgl_perawatan >= ? AND tgl_perawatan < ?
		ORDER BY tgl_perawatan DESC, jam_rawat DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("rawat_jl_drの取得に失敗: %w", err)
	}
	return rows, nil
}

// ListJnsPerawatan は外来処置マスタを処置コード順に返す。
func (s *Store) ListJnsPerawatan(ctx context.Context) ([]JnsPerawatan, error) {
	rows := []JnsPerawatan{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+jnsPerawatanColumns+` FROM jns_perawatan ORDER BY kd_jenis_prw`)
	if err != nil {
		return nil, fmt.Errorf("jns_perawatanの取得に失敗: %w", err)
	}
	return rows, nil
}

// ListJnsPerawatanInap は入院処置マスタを処置コード順に返す。
func (s *Store) ListJnsPerawatanInap(ctx context.Context) ([]JnsPerawatanInap, error) {
	rows := []JnsPerawatanInap{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+jnsPerawatanInapColumns+` FROM jns_perawatan_inap ORDER BY kd_jenis_prw`)
	if err != nil {
		return nil, fmt.Errorf("jns_perawatan_inapの取得に失敗: %w", err)
	}
	return rows, nil
}

// CountRows はテーブルの行数を返す。tableはTablesに含まれる名前でなければならない。
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if !slices.Contains(Tables, table) {
		return 0, fmt.Errorf("未知のテーブル: %q", table)
	}
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table); err != nil {
		return 0, fmt.Errorf("%sの件数取得に失敗: %w", table, err)
	}
	return count, nil
}

// monthRange は年月の初日と翌月初日を "YYYY-MM-DD" で返す。
// DATE列との比較をMySQLとSQLiteで共通にするため文字列で渡す。
func monthRange(year, month int) (string, string) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start.Format(DateLayout), start.AddDate(0, 1, 0).Format(DateLayout)
}
