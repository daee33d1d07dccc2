package compose

import "time"

// RelativeDate は時刻を通知文面用の相対表記に変換する。
// locにおいてnowと同じ暦日なら "today at 15:04"、それ以外は "1/2/2006 at 15:04" を返す。
func RelativeDate(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	ln := now.In(loc)

	if sameDay(lt, ln) {
		return "today at " + lt.Format("15:04")
	}
	return lt.Format("1/2/2006") + " at " + lt.Format("15:04")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
