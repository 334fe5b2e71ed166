// Package metrics はkhanza-apiのPrometheusメトリクスを定義する。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttemptsTotal はトークン認証の判定結果ごとの件数。
	// outcome: permanent, expiring, missing, malformed, secret_mismatch, expired
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "khanza_api_auth_attempts_total",
			Help: "Total number of token authentication attempts",
		},
		[]string{"outcome"},
	)

	// TokensIssuedTotal は発行した期限付きトークンの件数。
	TokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "khanza_api_tokens_issued_total",
			Help: "Total number of expiring tokens issued",
		},
	)

	// RequestsTotal はHTTPリクエストの件数。
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "khanza_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration はHTTPリクエストの処理時間。
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "khanza_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"method", "route"},
	)

	// StoreErrorsTotal はデータベース問い合わせの失敗件数。
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "khanza_api_store_errors_total",
			Help: "Total number of failed database queries",
		},
		[]string{"operation"},
	)
)
