// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力した自由記述（メッセージ本文、キャンセル理由、
// 食事メモなど）を通知文面に埋め込む前にプレーンテキストへ正規化する。
// プッシュ通知はHTMLを解釈しないため、bluemondayのStrictPolicyで全タグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由記述テキストの正規化機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はマークアップを除去し、連続する空白を1つの半角スペースにまとめる。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string

	// Preview はSanitize後の文字列をmaxRunes文字で切り詰める。
	// 切り詰めた場合は末尾に"…"を付与する。
	Preview(raw string, maxRunes int) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので複数goroutineから共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はマークアップを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyはテキスト中の&や<をエスケープするので元に戻す
	stripped = html.UnescapeString(stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// Preview はSanitize後の文字列を先頭maxRunes文字に切り詰める。
func (s *textSanitizer) Preview(raw string, maxRunes int) string {
	text := s.Sanitize(raw)
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:maxRunes]), " ") + "…"
}
