package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultLimit は検索件数が指定されなかった場合の上限件数。
	DefaultLimit = 50
	// MaxLimit は1回の検索で返す最大件数。これを超える指定は切り詰められる。
	MaxLimit = 1000
	// TimeFormat はcreated_atの文字列表現。UTC・マイクロ秒固定幅のISO-8601形式。
	TimeFormat = "2006-01-02T15:04:05.000000Z"
)

// Metadata はイベントに付随する任意のテキスト。
// 未指定（JSONのnullまたはフィールド欠落）とValid=trueの値を明示的に区別する。
type Metadata struct {
	// String はメタデータの本文。Validがfalseの場合は意味を持たない。
	String string
	// Valid はメタデータが指定されているかどうか。
	Valid bool
}

// NewMetadata は指定された文字列を持つMetadataを返す。
func NewMetadata(s string) Metadata {
	return Metadata{String: s, Valid: true}
}

// MarshalJSON は未指定のメタデータをnullとして出力する。
func (m Metadata) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.String)
}

// UnmarshalJSON はJSON文字列またはnullを受け付ける。文字列以外の型はエラーになる。
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Metadata{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("metadataは文字列である必要があります: %w", err)
	}
	*m = NewMetadata(s)
	return nil
}

// Event はクライアントから送信される監査イベント。
// 「誰が（Actor）」「何を（Resource）」「どうした（Action）」を表す。
type Event struct {
	// Actor は操作の実行者。
	Actor string `json:"actor"`
	// Action は実行された操作。
	Action string `json:"action"`
	// Resource は操作の対象。
	Resource string `json:"resource"`
	// Metadata は任意の補足情報。
	Metadata Metadata `json:"metadata"`
}

// Validate は必須フィールドがすべて指定されているかを検証する。
func (e Event) Validate() error {
	switch {
	case e.Actor == "":
		return &ValidationError{Field: "actor", Reason: "必須です"}
	case e.Action == "":
		return &ValidationError{Field: "action", Reason: "必須です"}
	case e.Resource == "":
		return &ValidationError{Field: "resource", Reason: "必須です"}
	}
	return nil
}

// Record はストアに追記された不変の監査レコード。
// IDとCreatedAtはストアが追記時に付与する。
type Record struct {
	// ID は追記順に単調増加する一意の連番。再利用されない。
	ID int64 `json:"id"`
	Event
	// CreatedAt は追記時刻（UTC）。
	CreatedAt time.Time `json:"created_at"`
}

// Filter は検索条件。空文字列のフィールドは条件として扱わない。
// 指定されたフィールドはすべてAND条件で完全一致（大文字小文字を区別）する。
type Filter struct {
	// Actor は実行者の完全一致条件。
	Actor string
	// Action は操作の完全一致条件。
	Action string
	// Resource は対象の完全一致条件。
	Resource string
	// Limit は返す最大件数。0の場合は空の結果になる。
	Limit int
}

// Validate は検索条件の形式を検証する。
func (f Filter) Validate() error {
	if f.Limit < 0 {
		return &ValidationError{Field: "limit", Reason: "0以上の整数を指定してください"}
	}
	return nil
}

// ClampLimit はlimitを0〜MaxLimitの範囲に収める。
func ClampLimit(limit int) int {
	if limit > MaxLimit {
		return MaxLimit
	}
	if limit < 0 {
		return 0
	}
	return limit
}
