// Package auditstore は監査レコードの追記専用ストアを提供する。
//
// SQLite（modernc.org/sqlite）をバックエンドとし、レコードは不変で
// 追記のみ（append-only）で運用される。更新・削除の操作は存在しない。
//
// 主な機能:
//   - スキーマの冪等な初期化（Init）
//   - レコードの追記（Append）
//   - 完全一致フィルタと件数上限による検索（Query / Count）
package auditstore
