package auditstore

import (
	"context"
	"embed"
	"fmt"

	"github.com/nao1215/auditlog/pkg/migration"
)

// migrationFS はスキーマ定義のマイグレーションファイル群。
//
//go:embed migrations/*.up.sql
var migrationFS embed.FS

// Init はSQLiteデータベースにスキーマを適用する。
// 起動のたびに実行しても既存のレコードは変更されない。
func (s *Store) Init(ctx context.Context) error {
	if _, err := migration.Run(ctx, s.db, migrationFS, "migrations", s.logger); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
