package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
}

func TestRecordNotificationSent_ByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNotificationSent("workout_assigned")
	c.RecordNotificationSent("workout_assigned")
	c.RecordNotificationSent("session_reminder")

	m := findMetric(t, reg, "coachnotify_notifications_sent_total", map[string]string{"kind": "workout_assigned"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("workout_assigned = %v, want 2", v)
	}
	m = findMetric(t, reg, "coachnotify_notifications_sent_total", map[string]string{"kind": "session_reminder"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("session_reminder = %v, want 1", v)
	}
}

func TestRecordSendFailureAndPrune(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSendFailure("message_received")
	c.RecordTokensPruned(3)

	m := findMetric(t, reg, "coachnotify_send_failures_total", map[string]string{"kind": "message_received"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("send_failures = %v, want 1", v)
	}
	m = findMetric(t, reg, "coachnotify_tokens_pruned_total", map[string]string{})
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("tokens_pruned = %v, want 3", v)
	}
}

func TestRecordWebhookEvent_ByTypeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("payment_intent.succeeded", "processed")
	c.RecordWebhookEvent("", "invalid_signature")

	m := findMetric(t, reg, "coachnotify_webhook_events_total",
		map[string]string{"event_type": "payment_intent.succeeded", "outcome": "processed"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("webhook processed = %v, want 1", v)
	}
}

func TestRecordReminderMatchesAndHandlerFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReminderMatches("session", 4)
	c.RecordReminderMatches("session", 0)
	c.RecordHandlerFailure("onSessionUpdate")

	m := findMetric(t, reg, "coachnotify_reminder_matches_total", map[string]string{"job": "session"})
	if v := m.GetCounter().GetValue(); v != 4 {
		t.Errorf("reminder_matches = %v, want 4", v)
	}
	m = findMetric(t, reg, "coachnotify_handler_failures_total", map[string]string{"handler": "onSessionUpdate"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("handler_failures = %v, want 1", v)
	}
}

func TestRecordChangeLag_Observes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordChangeLag(250 * time.Millisecond)
	c.RecordChangeLag(2 * time.Second)

	m := findMetric(t, reg, "coachnotify_change_lag_seconds", map[string]string{})
	if n := m.GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("sample count = %d, want 2", n)
	}
}

func TestRecordHTTPStatus_ByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(400)

	m := findMetric(t, reg, "coachnotify_http_status_total", map[string]string{"status_code": "400"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("http_status 400 = %v, want 1", v)
	}
}
