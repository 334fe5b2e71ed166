// Package token はAPIアクセス用のBearerトークンを発行・検証する。
//
// トークンは2種類ある。API_TOKEN_SECRETそのものを送る永続トークンと、
// 有効期限・ノンス・シークレットを "|" で連結してBase64化した期限付きトークン。
// どちらも状態を持たず、検証は設定済みシークレットとの比較のみで完結する。
package token
