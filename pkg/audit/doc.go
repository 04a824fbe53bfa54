// Package audit は監査ログサービスのドメイン型を提供する。
//
// クライアントが送信する監査イベント（Event）、ストアが付番・記録した
// 不変のレコード（Record）、検索条件（Filter）、およびエラー分類
// （ErrValidation / ErrStorage）を定義する。サーバー・ストア・クライアントの
// すべてがこのパッケージの型を共有する。
package audit
