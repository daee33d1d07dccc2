package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "空文字列はそのまま",
			input: "",
			want:  "",
		},
		{
			name:  "プレーンテキストは変更されない",
			input: "See you at the gym",
			want:  "See you at the gym",
		},
		{
			name:  "タグが除去される",
			input: "<b>Great</b> job <i>today</i>",
			want:  "Great job today",
		},
		{
			name:  "scriptタグは中身ごと除去される",
			input: "hi<script>alert(1)</script>",
			want:  "hi",
		},
		{
			name:  "エスケープされた記号は元に戻る",
			input: "Tom &amp; Jerry & friends",
			want:  "Tom & Jerry & friends",
		},
		{
			name:  "連続する空白と改行がまとめられる",
			input: "  line one\n\n\tline   two  ",
			want:  "line one line two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := "<p>Hello &amp; <em>welcome</em></p>"

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(first)
	if first != second {
		t.Errorf("Sanitizeが冪等ではありません: %q -> %q", first, second)
	}
}

func TestPreview_Truncates(t *testing.T) {
	sanitizer := NewTextSanitizer()

	short := "short message"
	if got := sanitizer.Preview(short, 100); got != short {
		t.Errorf("Preview(short) = %q, want %q", got, short)
	}

	long := strings.Repeat("a", 150)
	got := sanitizer.Preview(long, 100)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("切り詰め時は末尾に…が付くべき: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 101 {
		t.Errorf("rune数 = %d, want 101", n)
	}
}

func TestPreview_CountsRunesNotBytes(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := strings.Repeat("あ", 100)
	if got := sanitizer.Preview(input, 100); got != input {
		t.Errorf("100文字ちょうどは切り詰めないべき: got %d runes", utf8.RuneCountInString(got))
	}
}
