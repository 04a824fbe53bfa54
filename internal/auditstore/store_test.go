package auditstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nao1215/auditlog/internal/metrics"
	"github.com/nao1215/auditlog/pkg/audit"
)

// setupTestStore はテスト用のストアをインメモリSQLiteで構築するヘルパー関数。
// 各テストケースで独立したデータベースを使用するため、テスト間の干渉が発生しない。
func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	s, err := Open(context.Background(), MemoryPath, opts...)
	if err != nil {
		t.Fatalf("インメモリストアの作成に失敗: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// appendTestEvent はテスト用にイベントを追記するヘルパー関数。
func appendTestEvent(t *testing.T, s *Store, actor, action, resource string) audit.Record {
	t.Helper()

	rec, err := s.Append(context.Background(), audit.Event{Actor: actor, Action: action, Resource: resource})
	if err != nil {
		t.Fatalf("イベントの追記に失敗: %v", err)
	}
	return rec
}

// fixedClock は呼び出されるたびに1秒ずつ進む時計を返す。
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(time.Second)
		return now
	}
}

// TestAppend はイベント追記の各パターンを検証する。
func TestAppend(t *testing.T) {
	t.Parallel()

	t.Run("連番と追記時刻が付与される", func(t *testing.T) {
		t.Parallel()

		start := time.Date(2026, 10, 18, 9, 0, 0, 123456789, time.FixedZone("JST", 9*60*60))
		s := setupTestStore(t, WithClock(fixedClock(start)))

		rec, err := s.Append(context.Background(), audit.Event{
			Actor:    "alice",
			Action:   "login",
			Resource: "console",
			Metadata: audit.NewMetadata("ip=10.0.0.1"),
		})
		if err != nil {
			t.Fatalf("Append() でエラー: %v", err)
		}

		if rec.ID != 1 {
			t.Errorf("id = %d; 期待値 = 1", rec.ID)
		}
		want := start.UTC().Truncate(time.Microsecond)
		if !rec.CreatedAt.Equal(want) {
			t.Errorf("created_at = %v; 期待値 = %v", rec.CreatedAt, want)
		}
		if rec.CreatedAt.Location() != time.UTC {
			t.Errorf("created_at のタイムゾーン = %v; 期待値 = UTC", rec.CreatedAt.Location())
		}
		if rec.Metadata != audit.NewMetadata("ip=10.0.0.1") {
			t.Errorf("metadata = %+v", rec.Metadata)
		}
	})

	t.Run("追記したレコードが検索で1回だけ返る", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		appended, err := s.Append(context.Background(), audit.Event{
			Actor:    "bob",
			Action:   "delete",
			Resource: "doc-1",
			Metadata: audit.NewMetadata(`{"reason":"cleanup"}`),
		})
		if err != nil {
			t.Fatalf("Append() でエラー: %v", err)
		}

		records, err := s.Query(context.Background(), audit.Filter{Limit: audit.DefaultLimit})
		if err != nil {
			t.Fatalf("Query() でエラー: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("件数 = %d; 期待値 = 1", len(records))
		}

		got := records[0]
		if got.ID != appended.ID || got.Event != appended.Event {
			t.Errorf("検索結果 = %+v; 期待値 = %+v", got, appended)
		}
		if !got.CreatedAt.Equal(appended.CreatedAt) {
			t.Errorf("created_at = %v; 期待値 = %v", got.CreatedAt, appended.CreatedAt)
		}
	})

	t.Run("必須フィールドが空の場合はErrValidationで何も書き込まれない", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		tests := []audit.Event{
			{Action: "login", Resource: "console"},
			{Actor: "alice", Resource: "console"},
			{Actor: "alice", Action: "login"},
		}
		for _, ev := range tests {
			if _, err := s.Append(context.Background(), ev); !errors.Is(err, audit.ErrValidation) {
				t.Errorf("Append(%+v) = %v; ErrValidationであるべき", ev, err)
			}
		}

		n, err := s.Count(context.Background(), audit.Filter{})
		if err != nil {
			t.Fatalf("Count() でエラー: %v", err)
		}
		if n != 0 {
			t.Errorf("件数 = %d; 期待値 = 0", n)
		}
	})

	t.Run("メタデータ未指定はNULLとして保存される", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		appendTestEvent(t, s, "alice", "login", "console")

		var isNull bool
		if err := s.db.QueryRow("SELECT metadata IS NULL FROM audit_logs").Scan(&isNull); err != nil {
			t.Fatalf("metadataの取得に失敗: %v", err)
		}
		if !isNull {
			t.Error("metadata がNULLで保存されていない")
		}

		records, err := s.Query(context.Background(), audit.Filter{Limit: 1})
		if err != nil {
			t.Fatalf("Query() でエラー: %v", err)
		}
		if records[0].Metadata.Valid {
			t.Errorf("metadata = %+v; 未指定であるべき", records[0].Metadata)
		}
	})

	t.Run("idは追記順に厳密に増加する", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		var prev int64
		for i := 0; i < 5; i++ {
			rec := appendTestEvent(t, s, "alice", fmt.Sprintf("action-%d", i), "console")
			if rec.ID <= prev {
				t.Errorf("イベント%d: id = %d; 直前のid %d より大きいべき", i, rec.ID, prev)
			}
			prev = rec.ID
		}
	})

	t.Run("並行した追記でもidが重複しない", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		const workers = 8
		const perWorker = 25

		var wg sync.WaitGroup
		ids := make(chan int64, workers*perWorker)
		errs := make(chan error, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					rec, err := s.Append(context.Background(), audit.Event{
						Actor:    fmt.Sprintf("worker-%d", w),
						Action:   "write",
						Resource: fmt.Sprintf("item-%d", i),
					})
					if err != nil {
						errs <- err
						return
					}
					ids <- rec.ID
				}
			}(w)
		}
		wg.Wait()
		close(ids)
		close(errs)

		for err := range errs {
			t.Fatalf("並行追記でエラー: %v", err)
		}

		seen := make(map[int64]bool)
		for id := range ids {
			if seen[id] {
				t.Errorf("id %d が重複している", id)
			}
			seen[id] = true
		}
		if len(seen) != workers*perWorker {
			t.Errorf("一意なid数 = %d; 期待値 = %d", len(seen), workers*perWorker)
		}

		// id降順とcreated_at降順が矛盾しないこと
		records, err := s.Query(context.Background(), audit.Filter{Limit: audit.MaxLimit})
		if err != nil {
			t.Fatalf("Query() でエラー: %v", err)
		}
		for i := 1; i < len(records); i++ {
			if records[i].CreatedAt.After(records[i-1].CreatedAt) {
				t.Errorf("id=%d の created_at が id=%d より新しい", records[i].ID, records[i-1].ID)
			}
		}
	})

	t.Run("閉じたストアへの追記はStorageErrorになる", func(t *testing.T) {
		t.Parallel()

		m := metrics.New()
		s, err := Open(context.Background(), MemoryPath, WithMetrics(m))
		if err != nil {
			t.Fatalf("ストアの作成に失敗: %v", err)
		}
		s.Close()

		_, err = s.Append(context.Background(), audit.Event{Actor: "alice", Action: "login", Resource: "console"})
		if !errors.Is(err, audit.ErrStorage) {
			t.Fatalf("Append() = %v; ErrStorageであるべき", err)
		}
		var serr *audit.StorageError
		if !errors.As(err, &serr) || serr.Op != opAppend {
			t.Errorf("StorageError.Op = %v; 期待値 = %q", serr, opAppend)
		}
		if got := testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues(opAppend, "storage_error")); got != 1 {
			t.Errorf("storage_error の記録数 = %v; 期待値 = 1", got)
		}
	})
}

// TestQuery は検索の各パターンを検証する。
func TestQuery(t *testing.T) {
	t.Parallel()

	// seed はフィルタ検証用のレコードを追記する。
	seed := func(t *testing.T) *Store {
		t.Helper()

		s := setupTestStore(t)
		appendTestEvent(t, s, "alice", "login", "console")
		appendTestEvent(t, s, "alice", "logout", "console")
		appendTestEvent(t, s, "bob", "login", "console")
		appendTestEvent(t, s, "bob", "delete", "doc-1")
		appendTestEvent(t, s, "Alice", "login", "console")
		return s
	}

	t.Run("フィルタの組み合わせはAND条件になる", func(t *testing.T) {
		t.Parallel()

		s := seed(t)
		testCases := []struct {
			name    string
			filter  audit.Filter
			wantIDs []int64
		}{
			{name: "フィルタなし", filter: audit.Filter{}, wantIDs: []int64{5, 4, 3, 2, 1}},
			{name: "actorのみ", filter: audit.Filter{Actor: "alice"}, wantIDs: []int64{2, 1}},
			{name: "actionのみ", filter: audit.Filter{Action: "login"}, wantIDs: []int64{5, 3, 1}},
			{name: "resourceのみ", filter: audit.Filter{Resource: "doc-1"}, wantIDs: []int64{4}},
			{name: "actorとaction", filter: audit.Filter{Actor: "alice", Action: "login"}, wantIDs: []int64{1}},
			{name: "3つすべて", filter: audit.Filter{Actor: "bob", Action: "login", Resource: "console"}, wantIDs: []int64{3}},
			{name: "大文字小文字を区別する", filter: audit.Filter{Actor: "Alice"}, wantIDs: []int64{5}},
			{name: "一致なし", filter: audit.Filter{Actor: "carol"}, wantIDs: []int64{}},
			{name: "部分一致はしない", filter: audit.Filter{Actor: "ali"}, wantIDs: []int64{}},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				f := tc.filter
				f.Limit = audit.DefaultLimit
				records, err := s.Query(context.Background(), f)
				if err != nil {
					t.Fatalf("Query() でエラー: %v", err)
				}
				if records == nil {
					t.Fatal("結果がnilになっている。空でもスライスを返すべき")
				}

				gotIDs := make([]int64, 0, len(records))
				for _, r := range records {
					gotIDs = append(gotIDs, r.ID)
				}
				if fmt.Sprint(gotIDs) != fmt.Sprint(tc.wantIDs) {
					t.Errorf("ids = %v; 期待値 = %v", gotIDs, tc.wantIDs)
				}
			})
		}
	})

	t.Run("limitを超える件数は返さない", func(t *testing.T) {
		t.Parallel()

		s := seed(t)
		records, err := s.Query(context.Background(), audit.Filter{Limit: 2})
		if err != nil {
			t.Fatalf("Query() でエラー: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("件数 = %d; 期待値 = 2", len(records))
		}
		if records[0].ID != 5 || records[1].ID != 4 {
			t.Errorf("ids = [%d %d]; 期待値 = [5 4]", records[0].ID, records[1].ID)
		}
	})

	t.Run("limitが0の場合は空の結果を返す", func(t *testing.T) {
		t.Parallel()

		s := seed(t)
		records, err := s.Query(context.Background(), audit.Filter{Limit: 0})
		if err != nil {
			t.Fatalf("Query() でエラー: %v", err)
		}
		if records == nil || len(records) != 0 {
			t.Errorf("records = %v; 期待値 = 空のスライス", records)
		}
	})

	t.Run("負のlimitはValidationErrorになる", func(t *testing.T) {
		t.Parallel()

		s := seed(t)
		if _, err := s.Query(context.Background(), audit.Filter{Limit: -1}); !errors.Is(err, audit.ErrValidation) {
			t.Errorf("Query() = %v; ErrValidationであるべき", err)
		}
	})

	t.Run("SQLインジェクションを含む値もそのまま比較される", func(t *testing.T) {
		t.Parallel()

		s := seed(t)
		appendTestEvent(t, s, "x' OR '1'='1", "login", "console")

		records, err := s.Query(context.Background(), audit.Filter{Actor: "x' OR '1'='1", Limit: audit.DefaultLimit})
		if err != nil {
			t.Fatalf("Query() でエラー: %v", err)
		}
		if len(records) != 1 || records[0].Actor != "x' OR '1'='1" {
			t.Errorf("records = %+v; 1件のみ一致するべき", records)
		}
	})
}

// TestCount はフィルタに一致する件数の取得を検証する。
func TestCount(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	appendTestEvent(t, s, "alice", "login", "console")
	appendTestEvent(t, s, "alice", "logout", "console")
	appendTestEvent(t, s, "bob", "login", "console")

	testCases := []struct {
		name   string
		filter audit.Filter
		want   int64
	}{
		{name: "フィルタなし", filter: audit.Filter{Limit: 1}, want: 3},
		{name: "actor", filter: audit.Filter{Actor: "alice"}, want: 2},
		{name: "一致なし", filter: audit.Filter{Action: "delete"}, want: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := s.Count(context.Background(), tc.filter)
			if err != nil {
				t.Fatalf("Count() でエラー: %v", err)
			}
			if got != tc.want {
				t.Errorf("Count() = %d; 期待値 = %d", got, tc.want)
			}
		})
	}
}

// TestInit はスキーマ初期化の冪等性を検証する。
func TestInit(t *testing.T) {
	t.Parallel()

	t.Run("2回続けて実行してもレコードが重複も消失もしない", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		appendTestEvent(t, s, "alice", "login", "console")
		appendTestEvent(t, s, "bob", "login", "console")

		for i := 0; i < 2; i++ {
			if err := s.Init(context.Background()); err != nil {
				t.Fatalf("%d回目のInit() でエラー: %v", i+1, err)
			}
		}

		n, err := s.Count(context.Background(), audit.Filter{})
		if err != nil {
			t.Fatalf("Count() でエラー: %v", err)
		}
		if n != 2 {
			t.Errorf("件数 = %d; 期待値 = 2", n)
		}

		rec := appendTestEvent(t, s, "carol", "login", "console")
		if rec.ID != 3 {
			t.Errorf("再初期化後のid = %d; 期待値 = 3", rec.ID)
		}
	})

	t.Run("ファイルを開き直してもレコードが保持される", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "audit.db")
		ctx := context.Background()

		first, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("1回目のOpen() でエラー: %v", err)
		}
		if _, err := first.Append(ctx, audit.Event{Actor: "alice", Action: "login", Resource: "console"}); err != nil {
			t.Fatalf("Append() でエラー: %v", err)
		}
		if err := first.Close(); err != nil {
			t.Fatalf("Close() でエラー: %v", err)
		}

		second, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("2回目のOpen() でエラー: %v", err)
		}
		t.Cleanup(func() {
			second.Close()
		})

		records, err := second.Query(ctx, audit.Filter{Limit: audit.DefaultLimit})
		if err != nil {
			t.Fatalf("Query() でエラー: %v", err)
		}
		if len(records) != 1 || records[0].Actor != "alice" {
			t.Errorf("records = %+v; aliceの1件のみであるべき", records)
		}
	})

	t.Run("空のパスはエラーになる", func(t *testing.T) {
		t.Parallel()

		if _, err := Open(context.Background(), "  "); err == nil {
			t.Error("空のパスでエラーが返らなかった")
		}
	})
}

// TestPing は疎通確認を検証する。
func TestPing(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v; 期待値 = nil", err)
	}

	s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, audit.ErrStorage) {
		t.Errorf("閉じた後のPing() = %v; ErrStorageであるべき", err)
	}
}

// TestBuildQuery はフィルタからのSQL組み立てを検証する。
func TestBuildQuery(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		filter   audit.Filter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "フィルタなし",
			filter:   audit.Filter{Limit: 10},
			wantSQL:  selectColumns + " ORDER BY id DESC LIMIT ?",
			wantArgs: []any{10},
		},
		{
			name:     "actorとresource",
			filter:   audit.Filter{Actor: "alice", Resource: "console", Limit: 5},
			wantSQL:  selectColumns + " WHERE actor = ? AND resource = ? ORDER BY id DESC LIMIT ?",
			wantArgs: []any{"alice", "console", 5},
		},
		{
			name:     "すべて",
			filter:   audit.Filter{Actor: "a", Action: "b", Resource: "c", Limit: 1},
			wantSQL:  selectColumns + " WHERE actor = ? AND action = ? AND resource = ? ORDER BY id DESC LIMIT ?",
			wantArgs: []any{"a", "b", "c", 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gotSQL, gotArgs := buildQuery(tc.filter)
			if gotSQL != tc.wantSQL {
				t.Errorf("SQL = %q; 期待値 = %q", gotSQL, tc.wantSQL)
			}
			if fmt.Sprint(gotArgs) != fmt.Sprint(tc.wantArgs) {
				t.Errorf("args = %v; 期待値 = %v", gotArgs, tc.wantArgs)
			}
		})
	}

	t.Run("件数取得はLIMITを含まない", func(t *testing.T) {
		t.Parallel()

		gotSQL, gotArgs := buildCount(audit.Filter{Action: "login", Limit: 3})
		if want := countRecords + " WHERE action = ?"; gotSQL != want {
			t.Errorf("SQL = %q; 期待値 = %q", gotSQL, want)
		}
		if len(gotArgs) != 1 || gotArgs[0] != "login" {
			t.Errorf("args = %v; 期待値 = [login]", gotArgs)
		}
	})
}
