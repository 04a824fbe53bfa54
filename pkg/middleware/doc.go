// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// リクエストIDの付与、構造化リクエストログ、パニックリカバリ、
// CORS設定など、監査ログAPIで共通して使用するミドルウェアを含む。
package middleware
