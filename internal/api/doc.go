// Package api はSIMRS Khanza APIゲートウェイのHTTPサーバーを提供する。
//
// トークン発行・確認エンドポイント、職員および医療処置データの参照
// エンドポイント、ヘルスチェックとメトリクスを公開する。参照系の
// エンドポイントはすべてmiddleware.TokenAuthで保護される。
package api
