package token

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// bearerPrefix はAuthorizationヘッダーのBearerスキーム接頭辞。
const bearerPrefix = "Bearer "

// separator は期限付きトークンのフィールド区切り文字。
const separator = "|"

// NonceLength は期限付きトークンに埋め込むノンスの文字数。
const NonceLength = 32

// Kind は有効なトークンの種別。
type Kind int

const (
	// KindNone は種別が確定していない（拒否された）ことを表す。
	KindNone Kind = iota
	// KindPermanent はシークレットそのものを送る永続トークン。
	KindPermanent
	// KindExpiring は有効期限を内包する期限付きトークン。
	KindExpiring
)

// String は種別をレスポンスやログで使う名前に変換する。
func (k Kind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindExpiring:
		return "expiring"
	default:
		return "none"
	}
}

// Reason はトークンが拒否された理由。
type Reason int

const (
	// ReasonNone は拒否されていないことを表す。
	ReasonNone Reason = iota
	// ReasonNoCredential は資格情報が送られていない。
	ReasonNoCredential
	// ReasonMalformed はBase64やフィールド数、タイムスタンプが不正。
	ReasonMalformed
	// ReasonSecretMismatch は埋め込まれたシークレットが一致しない。
	ReasonSecretMismatch
	// ReasonExpired は有効期限を過ぎている。
	ReasonExpired
)

// String は拒否理由をログ用の名前に変換する。
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoCredential:
		return "missing"
	case ReasonMalformed:
		return "malformed"
	case ReasonSecretMismatch:
		return "secret_mismatch"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Outcome はClassifyの判定結果。
// Reason が ReasonNone のとき Kind に有効なトークン種別が入る。
// ExpiresAt は期限付きトークン（有効・期限切れの両方）でのみ設定される。
type Outcome struct {
	// Kind は有効と判定されたトークンの種別。
	Kind Kind
	// Reason は拒否理由。
	Reason Reason
	// ExpiresAt はトークンに埋め込まれた有効期限。
	ExpiresAt time.Time
}

// Valid はリクエストを通してよい判定かどうかを返す。
func (o Outcome) Valid() bool {
	return o.Reason == ReasonNone && o.Kind != KindNone
}

// String は判定結果をメトリクスのラベル等に使う文字列へ変換する。
func (o Outcome) String() string {
	if o.Valid() {
		return o.Kind.String()
	}
	return o.Reason.String()
}

// Issued は発行した期限付きトークン。
type Issued struct {
	// Token はBase64エンコード済みのトークン文字列。
	Token string
	// ExpiresAt は有効期限。
	ExpiresAt time.Time
}

// Codec は期限付きトークンの発行と、受け取ったトークンの判定を行う。
// 生成後は不変であり、複数のgoroutineから同時に利用できる。
type Codec struct {
	// secret はAPI_TOKEN_SECRETとして設定されたシークレット。
	secret string
	// ttl は固定の有効期間。0の場合は暦上の1ヶ月を使う。
	ttl time.Duration
	// clock は現在時刻の取得元。
	clock func() time.Time
	// nonce はノンス生成関数。
	nonce func() string
}

// Option はCodecの設定を変更する。
type Option func(*Codec)

// WithTTL は有効期間を固定の長さにする。0以下を渡すと暦上の1ヶ月に戻る。
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl < 0 {
			ttl = 0
		}
		c.ttl = ttl
	}
}

// WithClock は現在時刻の取得元を差し替える。
func WithClock(clock func() time.Time) Option {
	return func(c *Codec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithNonce はノンス生成関数を差し替える。
func WithNonce(nonce func() string) Option {
	return func(c *Codec) {
		if nonce != nil {
			c.nonce = nonce
		}
	}
}

// NewCodec は設定済みシークレットからCodecを生成する。
func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		clock:  time.Now,
		nonce:  newNonce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newNonce はUUIDのハイフンを除いた32文字のノンスを返す。
func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Now はCodecの時計で現在時刻を返す。
// 1回の判定で時刻を読むのは1度だけにすること。
func (c *Codec) Now() time.Time {
	return c.clock()
}

// TTL は設定された固定有効期間を返す。0は暦上の1ヶ月を意味する。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// ExpiresAt はnowに発行したトークンの有効期限を返す。
// 暦上の1ヶ月は time.AddDate と同じく月末をあふれさせる（1/31 → 3/3）。
func (c *Codec) ExpiresAt(now time.Time) time.Time {
	if c.ttl > 0 {
		return now.Add(c.ttl)
	}
	return now.AddDate(0, 1, 0)
}

// Issue はnowを起点に新しい期限付きトークンを発行する。
func (c *Codec) Issue(now time.Time) (Issued, error) {
	expiresAt := c.ExpiresAt(now)
	nonce := c.nonce()
	if len(nonce) != NonceLength {
		return Issued{}, fmt.Errorf("ノンスの長さが不正: got %d, want %d", len(nonce), NonceLength)
	}
	return Issued{
		Token:     Encode(expiresAt, nonce, c.secret),
		ExpiresAt: time.Unix(expiresAt.Unix(), 0).In(now.Location()),
	}, nil
}

// Encode は期限付きトークンをパックする。
func Encode(expiresAt time.Time, nonce, secret string) string {
	body := strconv.FormatInt(expiresAt.Unix(), 10) + separator + nonce + separator + secret
	return base64.StdEncoding.EncodeToString([]byte(body))
}

// Classify はAuthorizationヘッダーの値を判定する。
// 判定順序: 未送信 → 永続トークン一致 → 形式 → シークレット → 有効期限。
func (c *Codec) Classify(raw string, now time.Time) Outcome {
	if raw == "" {
		return Outcome{Reason: ReasonNoCredential}
	}

	credential := strings.TrimPrefix(raw, bearerPrefix)
	if c.matchSecret(credential) {
		return Outcome{Kind: KindPermanent}
	}

	decoded, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		return Outcome{Reason: ReasonMalformed}
	}

	fields := strings.Split(string(decoded), separator)
	if len(fields) != 3 {
		return Outcome{Reason: ReasonMalformed}
	}

	expiresUnix, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Outcome{Reason: ReasonMalformed}
	}

	if !c.matchSecret(fields[2]) {
		return Outcome{Reason: ReasonSecretMismatch}
	}

	expiresAt := time.Unix(expiresUnix, 0).In(now.Location())
	if now.Unix() > expiresUnix {
		return Outcome{Reason: ReasonExpired, ExpiresAt: expiresAt}
	}

	return Outcome{Kind: KindExpiring, ExpiresAt: expiresAt}
}

// matchSecret は候補が設定済みシークレットと一致するかを定数時間で比較する。
// シークレット未設定の場合は何とも一致しない。
func (c *Codec) matchSecret(candidate string) bool {
	if c.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(c.secret)) == 1
}
