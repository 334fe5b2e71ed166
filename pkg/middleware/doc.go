// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 自己記述型Bearerトークンによる認証ゲート、リクエスト・レスポンスの
// アクティビティログ、パニックリカバリ、CORS設定を含む。
package middleware
