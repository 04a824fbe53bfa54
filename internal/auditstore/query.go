package auditstore

import (
	"strings"

	"github.com/nao1215/auditlog/pkg/audit"
)

const (
	selectColumns = "SELECT id, actor, action, resource, metadata, created_at FROM audit_logs"
	countRecords  = "SELECT COUNT(*) FROM audit_logs"
)

// condition は1つの完全一致条件。columnは定数のみで、値は常にプレースホルダで渡す。
type condition struct {
	column string
	value  string
}

// whereClause は指定されたフィルタからAND結合のWHERE句と引数を組み立てる。
// 空文字列のフィルタは条件に含めない。
func whereClause(f audit.Filter) (string, []any) {
	candidates := []condition{
		{column: "actor", value: f.Actor},
		{column: "action", value: f.Action},
		{column: "resource", value: f.Resource},
	}

	var (
		conds []string
		args  []any
	)
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		conds = append(conds, c.column+" = ?")
		args = append(args, c.value)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildQuery は検索用のSQLと引数を組み立てる。結果はid降順でlimit件まで。
func buildQuery(f audit.Filter) (string, []any) {
	where, args := whereClause(f)
	return selectColumns + where + " ORDER BY id DESC LIMIT ?", append(args, f.Limit)
}

// buildCount は件数取得用のSQLと引数を組み立てる。limitは無視する。
func buildCount(f audit.Filter) (string, []any) {
	where, args := whereClause(f)
	return countRecords + where, args
}
