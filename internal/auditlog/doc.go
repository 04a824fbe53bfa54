// Package auditlog は監査ログサービスのHTTPアクセス層を提供する。
//
// 外部からのリクエストを構造的に検証したうえでイベントストアの操作に変換し、
// 結果をJSONレスポンスとして返す。ストアはNewServerで注入される。
//
// エンドポイント:
//   - POST /api/v1/events  監査イベントの記録
//   - GET  /api/v1/logs    監査レコードの検索
//   - GET  /health         死活確認（ストアに依存しない）
//   - GET  /ready          ストアへの疎通確認
//   - GET  /metrics        Prometheusメトリクス
package auditlog
