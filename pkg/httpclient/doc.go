// Package httpclient はkhanza-apiのHTTP APIを呼び出すクライアントを提供する。
//
// Bearerトークンの付与と、{"success","message","data"} 形式のレスポンスの
// 解釈を共通化する。運用CLIの疎通確認で使用する。
package httpclient
