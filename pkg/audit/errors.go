package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation は入力の必須フィールド欠落や形式不正を表す。
	// クライアントエラーとして扱い、ストアには到達させない。
	ErrValidation = errors.New("入力が不正です")
	// ErrStorage は永続化層の読み書き失敗を表す。
	// サーバーエラーとして扱い、自動リトライは行わない。
	ErrStorage = errors.New("ストレージ操作に失敗しました")
)

// ValidationError はどのフィールドがなぜ不正だったかを保持する。
type ValidationError struct {
	// Field は不正だったフィールド名。
	Field string
	// Reason は不正の理由。
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap はErrValidationを返す。errors.Is(err, ErrValidation)で判定できる。
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StorageError は失敗したストア操作と下位のエラーを保持する。
type StorageError struct {
	// Op は失敗した操作名（append, query など）。
	Op string
	// Err はドライバから返されたエラー。
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s に失敗: %v", e.Op, e.Err)
}

// Unwrap はErrStorageと下位のエラーの両方を返す。
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}
