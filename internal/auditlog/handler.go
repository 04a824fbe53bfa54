package auditlog

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/auditlog/pkg/audit"
)

// headerTotalCount はフィルタに一致した総件数を返すレスポンスヘッダー。
const headerTotalCount = "X-Total-Count"

// statusEventLogged はイベント記録成功時に返すステータス。
const statusEventLogged = "event_logged"

// createEventRequest はイベント記録リクエストのJSON構造。
type createEventRequest struct {
	// Actor は操作の実行者。
	Actor string `json:"actor" binding:"required"`
	// Action は実行された操作。
	Action string `json:"action" binding:"required"`
	// Resource は操作の対象。
	Resource string `json:"resource" binding:"required"`
	// Metadata は任意の補足情報。
	Metadata audit.Metadata `json:"metadata"`
}

// createEventResponse はイベント記録成功時のJSONレスポンス構造。
type createEventResponse struct {
	// Status は常に"event_logged"。
	Status string `json:"status"`
	// ID は付番されたレコードID。
	ID int64 `json:"id"`
	// CreatedAt は追記時刻。
	CreatedAt string `json:"created_at"`
}

// recordResponse は監査レコードのJSONレスポンス構造。
type recordResponse struct {
	// ID はレコードの連番。
	ID int64 `json:"id"`
	// Actor は操作の実行者。
	Actor string `json:"actor"`
	// Action は実行された操作。
	Action string `json:"action"`
	// Resource は操作の対象。
	Resource string `json:"resource"`
	// Metadata は任意の補足情報。未指定の場合はnull。
	Metadata audit.Metadata `json:"metadata"`
	// CreatedAt は追記時刻（UTC、ISO-8601）。
	CreatedAt string `json:"created_at"`
}

// toRecordResponses はレコードのスライスをレスポンス形式に変換する。
func toRecordResponses(records []audit.Record) []recordResponse {
	responses := make([]recordResponse, 0, len(records))
	for _, r := range records {
		responses = append(responses, recordResponse{
			ID:        r.ID,
			Actor:     r.Actor,
			Action:    r.Action,
			Resource:  r.Resource,
			Metadata:  r.Metadata,
			CreatedAt: r.CreatedAt.UTC().Format(audit.TimeFormat),
		})
	}
	return responses
}

// handleCreateEvent は監査イベントの記録を処理するハンドラを返す。
// 必須フィールドが欠けている、または文字列でない場合は400を返し、ストアには到達しない。
func (s *Server) handleCreateEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		ctx, cancel := s.storeContext(c)
		defer cancel()

		rec, err := s.store.Append(ctx, audit.Event{
			Actor:    req.Actor,
			Action:   req.Action,
			Resource: req.Resource,
			Metadata: req.Metadata,
		})
		if err != nil {
			s.writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, createEventResponse{
			Status:    statusEventLogged,
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt.UTC().Format(audit.TimeFormat),
		})
	}
}

// handleQueryLogs は監査レコードの検索を処理するハンドラを返す。
// 結果はid降順（新しい順）で、X-Total-Countヘッダーにフィルタ一致の総件数を設定する。
func (s *Server) handleQueryLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := parseFilter(c)
		if err != nil {
			s.writeError(c, err)
			return
		}

		ctx, cancel := s.storeContext(c)
		defer cancel()

		records, err := s.store.Query(ctx, filter)
		if err != nil {
			s.writeError(c, err)
			return
		}
		total, err := s.store.Count(ctx, filter)
		if err != nil {
			s.writeError(c, err)
			return
		}

		c.Header(headerTotalCount, strconv.FormatInt(total, 10))
		c.JSON(http.StatusOK, toRecordResponses(records))
	}
}

// handleReady はストアへの疎通を確認するハンドラを返す。
func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := s.storeContext(c)
		defer cancel()

		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("ストアに到達できません")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": serviceName})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": serviceName})
	}
}

// parseFilter はクエリパラメータから検索条件を組み立てる。
// limitは未指定なら既定値、上限を超える値は上限に切り詰める。
func parseFilter(c *gin.Context) (audit.Filter, error) {
	filter := audit.Filter{
		Actor:    c.Query("actor"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Limit:    audit.DefaultLimit,
	}

	if raw, ok := c.GetQuery("limit"); ok {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return audit.Filter{}, &audit.ValidationError{Field: "limit", Reason: "整数を指定してください"}
		}
		if limit < 0 {
			return audit.Filter{}, &audit.ValidationError{Field: "limit", Reason: "0以上の整数を指定してください"}
		}
		filter.Limit = audit.ClampLimit(limit)
	}

	return filter, nil
}
