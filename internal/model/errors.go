// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrNoPriorState はupdate以外の変更で変更前の状態を要求した場合のエラー。
var ErrNoPriorState = errors.New("change has no prior state")

// APIError はCallable APIの呼び出し元に返す分類済みエラーを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, payment, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード。モバイルクライアントのCallableエラーコードに合わせる。
const (
	ErrCodeUnauthenticated   = "unauthenticated"
	ErrCodeInvalidArgument   = "invalid-argument"
	ErrCodeInternal          = "internal"
	ErrCodeResourceExhausted = "resource-exhausted"
)

// NewUnauthenticatedError は呼び出し元が未認証の場合のエラーを生成する。
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  message,
		Category: "auth",
	}
}

// NewInvalidArgumentError は必須フィールドの欠落など入力不正のエラーを生成する。
func NewInvalidArgumentError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  message,
		Category: "validation",
	}
}

// NewInternalError は決済プロバイダ呼び出しの失敗など内部エラーを生成する。
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeResourceExhausted,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
	}
}
