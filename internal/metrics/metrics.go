// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ディスパッチャ、トリガーハンドラ、ワーカー、Webhook処理から利用する。
type MetricsCollector interface {
	RecordNotificationSent(kind string)
	RecordSendFailure(kind string)
	RecordTokensPruned(count int)
	RecordWebhookEvent(eventType, outcome string)
	RecordReminderMatches(job string, count int)
	RecordHandlerFailure(handler string)
	RecordChangeLag(lag time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	notificationsSent *prometheus.CounterVec
	sendFailures      *prometheus.CounterVec
	tokensPruned      prometheus.Counter
	webhookEvents     *prometheus.CounterVec
	reminderMatches   *prometheus.CounterVec
	handlerFailures   *prometheus.CounterVec
	changeLag         prometheus.Histogram
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachnotify_notifications_sent_total",
			Help: "送信に成功したプッシュ通知の数（トークン単位）",
		}, []string{"kind"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachnotify_send_failures_total",
			Help: "送信に失敗したプッシュ通知の数（トークン単位）",
		}, []string{"kind"}),
		tokensPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coachnotify_tokens_pruned_total",
			Help: "無効と判定して削除したFCMトークンの合計数",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachnotify_webhook_events_total",
			Help: "イベント種別と処理結果ごとのWebhook受信数",
		}, []string{"event_type", "outcome"}),
		reminderMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachnotify_reminder_matches_total",
			Help: "リマインドジョブが抽出した対象件数",
		}, []string{"job"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachnotify_handler_failures_total",
			Help: "トリガーハンドラで握りつぶしたエラーとpanicの数",
		}, []string{"handler"}),
		changeLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coachnotify_change_lag_seconds",
			Help:    "ドキュメント変更の記録からハンドラ実行までの遅延（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachnotify_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.notificationsSent,
		c.sendFailures,
		c.tokensPruned,
		c.webhookEvents,
		c.reminderMatches,
		c.handlerFailures,
		c.changeLag,
		c.httpStatus,
	)

	return c
}

// RecordNotificationSent は送信成功を記録する。
func (c *Collector) RecordNotificationSent(kind string) {
	c.notificationsSent.WithLabelValues(kind).Inc()
}

// RecordSendFailure は送信失敗を記録する。
func (c *Collector) RecordSendFailure(kind string) {
	c.sendFailures.WithLabelValues(kind).Inc()
}

// RecordTokensPruned は削除したトークン数を記録する。
func (c *Collector) RecordTokensPruned(count int) {
	c.tokensPruned.Add(float64(count))
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordReminderMatches はリマインド対象件数を記録する。
func (c *Collector) RecordReminderMatches(job string, count int) {
	c.reminderMatches.WithLabelValues(job).Add(float64(count))
}

// RecordHandlerFailure はハンドラ失敗を記録する。
func (c *Collector) RecordHandlerFailure(handler string) {
	c.handlerFailures.WithLabelValues(handler).Inc()
}

// RecordChangeLag は変更フィードの遅延を記録する。
func (c *Collector) RecordChangeLag(lag time.Duration) {
	c.changeLag.Observe(lag.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
