package store

import (
	"fmt"
	"time"
)

// DateLayout はDate型のJSON表現。
const DateLayout = "2006-01-02"

// Date はDATE列の値。MySQLのparseTime有無やSQLiteのTEXT格納の違いを吸収する。
type Date struct {
	time.Time
}

// dateLayouts はScanが文字列から受け付ける書式。
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// Scan はsql.Scannerを実装する。
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = v
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("Date型に変換できない値: %T", src)
	}
}

// parse は文字列の日付を解釈する。MySQLのゼロ日付はゼロ値として扱う。
func (d *Date) parse(s string) error {
	if s == "" || s == "0000-00-00" || s == "0000-00-00 00:00:00" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("日付の解析に失敗: %q", s)
}

// MarshalJSON は日付を "YYYY-MM-DD" で出力する。ゼロ値はnullになる。
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// String は日付を "YYYY-MM-DD" で返す。
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Pegawai は職員マスタ（pegawai）の1行。
type Pegawai struct {
	ID            int64   `db:"id" json:"id"`
	NIK           string  `db:"nik" json:"nik"`
	Nama          string  `db:"nama" json:"nama"`
	JK            string  `db:"jk" json:"jk"`
	Jbtn          string  `db:"jbtn" json:"jbtn"`
	JnjJabatan    string  `db:"jnj_jabatan" json:"jnj_jabatan"`
	KodeKelompok  string  `db:"kode_kelompok" json:"kode_kelompok"`
	KodeResiko    string  `db:"kode_resiko" json:"kode_resiko"`
	KodeEmergency string  `db:"kode_emergency" json:"kode_emergency"`
	Departemen    string  `db:"departemen" json:"departemen"`
	Bidang        string  `db:"bidang" json:"bidang"`
	SttsWP        string  `db:"stts_wp" json:"stts_wp"`
	SttsKerja     string  `db:"stts_kerja" json:"stts_kerja"`
	NPWP          string  `db:"npwp" json:"npwp"`
	Pendidikan    string  `db:"pendidikan" json:"pendidikan"`
	Gapok         float64 `db:"gapok" json:"gapok"`
	TmpLahir      string  `db:"tmp_lahir" json:"tmp_lahir"`
	TglLahir      Date    `db:"tgl_lahir" json:"tgl_lahir"`
	Alamat        string  `db:"alamat" json:"alamat"`
	Kota          string  `db:"kota" json:"kota"`
	MulaiKerja    Date    `db:"mulai_kerja" json:"mulai_kerja"`
	MsKerja       string  `db:"ms_kerja" json:"ms_kerja"`
	Indexins      string  `db:"indexins" json:"indexins"`
	BPD           string  `db:"bpd" json:"bpd"`
	Rekening      string  `db:"rekening" json:"rekening"`
	SttsAktif     string  `db:"stts_aktif" json:"stts_aktif"`
}

// RawatInapDr は入院患者への医師処置（rawat_inap_dr）の1行。
// kso と menejemen はKhanzaでNULL許容のためポインタにしている。
type RawatInapDr struct {
	NoRawat         string   `db:"no_rawat" json:"no_rawat"`
	KdJenisPrw      string   `db:"kd_jenis_prw" json:"kd_jenis_prw"`
	KdDokter        string   `db:"kd_dokter" json:"kd_dokter"`
	TglPerawatan    Date     `db:"tgl_perawatan" json:"tgl_perawatan"`
	JamRawat        string   `db:"jam_rawat" json:"jam_rawat"`
	Material        float64  `db:"material" json:"material"`
	BHP             float64  `db:"bhp" json:"bhp"`
	TarifTindakanDr float64  `db:"tarif_tindakandr" json:"tarif_tindakandr"`
	KSO             *float64 `db:"kso" json:"kso"`
	Menejemen       *float64 `db:"menejemen" json:"menejemen"`
	BiayaRawat      float64  `db:"biaya_rawat" json:"biaya_rawat"`
}

// RawatJlDr は外来患者への医師処置（rawat_jl_dr）の1行。
type RawatJlDr struct {
	NoRawat         string   `db:"no_rawat" json:"no_rawat"`
	KdJenisPrw      string   `db:"kd_jenis_prw" json:"kd_jenis_prw"`
	KdDokter        string   `db:"kd_dokter" json:"kd_dokter"`
	TglPerawatan    Date     `db:"tgl_perawatan" json:"tgl_perawatan"`
	JamRawat        string   `db:"jam_rawat" json:"jam_rawat"`
	Material        float64  `db:"material" json:"material"`
	BHP             float64  `db:"bhp" json:"bhp"`
	TarifTindakanDr float64  `db:"tarif_tindakandr" json:"tarif_tindakandr"`
	KSO             *float64 `db:"kso" json:"kso"`
	Menejemen       *float64 `db:"menejemen" json:"menejemen"`
	BiayaRawat      float64  `db:"biaya_rawat" json:"biaya_rawat"`
	SttsBayar       string   `db:"stts_bayar" json:"stts_bayar"`
}

// JnsPerawatan は外来処置マスタ（jns_perawatan）の1行。
type JnsPerawatan struct {
	KdJenisPrw      string   `db:"kd_jenis_prw" json:"kd_jenis_prw"`
	NmPerawatan     string   `db:"nm_perawatan" json:"nm_perawatan"`
	KdKategori      string   `db:"kd_kategori" json:"kd_kategori"`
	Material        float64  `db:"material" json:"material"`
	BHP             float64  `db:"bhp" json:"bhp"`
	TarifTindakanDr float64  `db:"tarif_tindakandr" json:"tarif_tindakandr"`
	TarifTindakanPr float64  `db:"tarif_tindakanpr" json:"tarif_tindakanpr"`
	KSO             *float64 `db:"kso" json:"kso"`
	Menejemen       *float64 `db:"menejemen" json:"menejemen"`
	TotalByrDr      float64  `db:"total_byrdr" json:"total_byrdr"`
	TotalByrPr      float64  `db:"total_byrpr" json:"total_byrpr"`
	TotalByrDrPr    float64  `db:"total_byrdrpr" json:"total_byrdrpr"`
	KdPJ            string   `db:"kd_pj" json:"kd_pj"`
	KdPoli          string   `db:"kd_poli" json:"kd_poli"`
	Status          string   `db:"status" json:"status"`
}

// JnsPerawatanInap は入院処置マスタ（jns_perawatan_inap）の1行。
type JnsPerawatanInap struct {
	KdJenisPrw      string   `db:"kd_jenis_prw" json:"kd_jenis_prw"`
	NmPerawatan     string   `db:"nm_perawatan" json:"nm_perawatan"`
	KdKategori      string   `db:"kd_kategori" json:"kd_kategori"`
	Material        float64  `db:"material" json:"material"`
	BHP             float64  `db:"bhp" json:"bhp"`
	TarifTindakanDr float64  `db:"tarif_tindakandr" json:"tarif_tindakandr"`
	TarifTindakanPr float64  `db:"tarif_tindakanpr" json:"tarif_tindakanpr"`
	KSO             *float64 `db:"kso" json:"kso"`
	Menejemen       *float64 `db:"menejemen" json:"menejemen"`
	TotalByrDr      float64  `db:"total_byrdr" json:"total_byrdr"`
	TotalByrPr      float64  `db:"total_byrpr" json:"total_byrpr"`
	TotalByrDrPr    float64  `db:"total_byrdrpr" json:"total_byrdrpr"`
	KdPJ            string   `db:"kd_pj" json:"kd_pj"`
	KdBangsal       string   `db:"kd_bangsal" json:"kd_bangsal"`
	Status          string   `db:"status" json:"status"`
	Kelas           string   `db:"kelas" json:"kelas"`
}
