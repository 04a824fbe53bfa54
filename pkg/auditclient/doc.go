// Package auditclient は監査ログサービスのHTTP APIを呼び出すクライアントを提供する。
//
// 他のサービスが監査イベントを記録する際や、auditctlコマンドが
// 記録済みのレコードを検索する際に使用する。
package auditclient
