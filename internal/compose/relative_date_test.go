package compose

import (
	"testing"
	"time"
)

func TestRelativeDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("タイムゾーンデータが利用できません: %v", err)
	}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, ny)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{
			name: "同日は today 表記",
			t:    time.Date(2026, 3, 10, 15, 30, 0, 0, ny),
			want: "today at 15:30",
		},
		{
			name: "同日の0時ちょうど",
			t:    time.Date(2026, 3, 10, 0, 0, 0, 0, ny),
			want: "today at 00:00",
		},
		{
			name: "翌日は日付表記",
			t:    time.Date(2026, 3, 11, 8, 5, 0, 0, ny),
			want: "3/11/2026 at 08:05",
		},
		{
			name: "前日は日付表記",
			t:    time.Date(2026, 3, 9, 23, 59, 0, 0, ny),
			want: "3/9/2026 at 23:59",
		},
		{
			name: "UTCで与えられた時刻もゾーンの暦日で判定する",
			// 2026-03-11 02:00 UTC は New York では 3/10 22:00
			t:    time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC),
			want: "today at 22:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelativeDate(tt.t, now, ny); got != tt.want {
				t.Errorf("RelativeDate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRelativeDate_NilLocationUsesUTC(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if got := RelativeDate(now.Add(time.Hour), now, nil); got != "today at 13:00" {
		t.Errorf("RelativeDate = %q, want %q", got, "today at 13:00")
	}
}
