package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedPath はルートに一致しなかったリクエストのpathラベル。
// 任意のURLでラベルの種類が増え続けないようにまとめる。
const unmatchedPath = "unmatched"

// Middleware はHTTPリクエスト数と処理時間を記録するGinミドルウェアを返す。
// pathラベルには実際のURLではなくルート定義（c.FullPath）を使う。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
