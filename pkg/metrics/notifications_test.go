package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNotificationMetricsCountByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotificationMetrics(reg)

	m.IncSent("order_confirmation")
	m.IncSent("order_confirmation")
	m.IncFailed("status_update")
	m.IncDropped("")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sent.WithLabelValues("order_confirmation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failed.WithLabelValues("status_update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("unknown")))
}

func TestWebhookMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)

	m.Observe("payment_intent.succeeded", WebhookProcessed)
	m.Observe("payment_intent.succeeded", WebhookDuplicate)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("payment_intent.succeeded", WebhookProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("payment_intent.succeeded", WebhookDuplicate)))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var n *NotificationMetrics
	n.IncSent("x")
	n.IncFailed("x")
	n.IncDropped("x")

	var w *WebhookMetrics
	w.Observe("x", WebhookFailed)

	NewNotificationMetrics(nil).IncSent("x")
	NewCronJobMetrics(nil).IncSuccess("x")
}
