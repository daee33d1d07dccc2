package model

// Notification はプッシュ通知1件分の内容。
// Dataは文字列キーと文字列/数値の値を持ち、必ず "type" にイベント種別を含む。
type Notification struct {
	RecipientID string
	Title       string
	Body        string
	Data        map[string]any
}

// Kind はDataに格納されたイベント種別を返す。
func (n Notification) Kind() EventKind {
	if v, ok := n.Data["type"].(string); ok {
		return EventKind(v)
	}
	return ""
}
