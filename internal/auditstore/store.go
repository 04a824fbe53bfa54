package auditstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nao1215/auditlog/internal/metrics"
	"github.com/nao1215/auditlog/pkg/audit"
)

// MemoryPath はインメモリデータベースを開くためのパス。
const MemoryPath = ":memory:"

// ストア操作名。StorageErrorとメトリクスのラベルに使用する。
const (
	opAppend = "append"
	opQuery  = "query"
	opCount  = "count"
	opPing   = "ping"
)

// Store は監査レコードの追記専用ストア。
// 複数のゴルーチンから同時に呼び出してよい。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// mu は時刻の採番と書き込みを直列化する。idとcreated_atの順序を一致させる。
	mu sync.Mutex
	// now は追記時刻を返す関数。
	now func() time.Time
	// logger はストアのロガー。
	logger zerolog.Logger
	// metrics はストア操作のメトリクス。nilの場合は記録しない。
	metrics *metrics.Metrics
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithClock は追記時刻の取得に使う関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger はストアのロガーを設定する。
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "auditstore").Logger()
	}
}

// WithMetrics はストア操作を記録するメトリクスを設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Open はSQLiteデータベースを開き、スキーマを適用したStoreを返す。
// pathにMemoryPathを指定するとインメモリデータベースになる。
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("データベースのパスが指定されていません")
	}

	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("データベースディレクトリの作成に失敗: %w", err)
		}
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// 書き込みとid採番を1接続に直列化する。インメモリDBは接続ごとに別物になるためでもある。
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := New(sqlDB, opts...)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if err := s.Init(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// New は開き済みのデータベース接続からStoreを生成する。
// スキーマは適用しないため、必要に応じてInitを呼び出すこと。
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping はデータベースに到達できるかを確認する。
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail(opPing, err)
	}
	return nil
}

// Append はイベントに連番と追記時刻を付与して永続化する。
// 正常に返った時点でレコードは書き込み済みで、以降の検索から参照できる。
// 書き込みは1文のINSERTで行うため、部分的なレコードが見えることはない。
func (s *Store) Append(ctx context.Context, ev audit.Event) (audit.Record, error) {
	if err := ev.Validate(); err != nil {
		s.metrics.ObserveStore(opAppend, err)
		return audit.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.now().UTC().Truncate(time.Microsecond)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (actor, action, resource, metadata, created_at) VALUES (?, ?, ?, ?, ?)",
		ev.Actor, ev.Action, ev.Resource, toNullString(ev.Metadata), createdAt.Format(audit.TimeFormat),
	)
	if err != nil {
		return audit.Record{}, s.fail(opAppend, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return audit.Record{}, s.fail(opAppend, err)
	}

	s.metrics.ObserveStore(opAppend, nil)
	s.metrics.ObserveAppended()
	s.logger.Debug().Int64("id", id).Str("actor", ev.Actor).Str("action", ev.Action).Msg("監査イベントを追記しました")

	return audit.Record{ID: id, Event: ev, CreatedAt: createdAt}, nil
}

// Query はフィルタに一致するレコードをid降順で最大Limit件返す。
// Limitが0の場合や一致するレコードがない場合は空のスライスを返す。
func (s *Store) Query(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	if err := f.Validate(); err != nil {
		s.metrics.ObserveStore(opQuery, err)
		return nil, err
	}
	if f.Limit == 0 {
		s.metrics.ObserveStore(opQuery, nil)
		return []audit.Record{}, nil
	}

	query, args := buildQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(opQuery, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]audit.Record, 0, min(f.Limit, audit.DefaultLimit))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, s.fail(opQuery, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(opQuery, err)
	}

	s.metrics.ObserveStore(opQuery, nil)
	return records, nil
}

// Count はフィルタに一致するレコードの総数を返す。Limitは無視する。
func (s *Store) Count(ctx context.Context, f audit.Filter) (int64, error) {
	query, args := buildCount(f)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.fail(opCount, err)
	}
	s.metrics.ObserveStore(opCount, nil)
	return n, nil
}

// fail はドライバのエラーをStorageErrorに変換し、ログとメトリクスに記録する。
func (s *Store) fail(op string, err error) error {
	serr := &audit.StorageError{Op: op, Err: err}
	s.metrics.ObserveStore(op, serr)
	s.logger.Error().Err(err).Str("op", op).Msg("ストア操作に失敗しました")
	return serr
}

// scanRecord は1行をRecordに変換する。
func scanRecord(rows *sql.Rows) (audit.Record, error) {
	var (
		rec       audit.Record
		metadata  sql.NullString
		createdAt string
	)
	if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Action, &rec.Resource, &metadata, &createdAt); err != nil {
		return audit.Record{}, fmt.Errorf("行の読み取りに失敗: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return audit.Record{}, fmt.Errorf("created_atの解析に失敗 (id=%d): %w", rec.ID, err)
	}
	rec.CreatedAt = t.UTC()
	if metadata.Valid {
		rec.Metadata = audit.NewMetadata(metadata.String)
	}
	return rec, nil
}

// toNullString はMetadataをSQLのNULL許容文字列に変換する。
func toNullString(m audit.Metadata) sql.NullString {
	return sql.NullString{String: m.String, Valid: m.Valid}
}
