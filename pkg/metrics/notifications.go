package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics counts notification outcomes by kind.
type NotificationMetrics struct {
	sent    *prometheus.CounterVec
	failed  *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_notifications_sent_total",
		Help: "Notifications delivered to the email provider.",
	}, []string{"kind"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_notifications_failed_total",
		Help: "Notifications the email provider rejected or that timed out.",
	}, []string{"kind"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_notifications_dropped_total",
		Help: "Notifications discarded because the dispatch queue was full or closed.",
	}, []string{"kind"})
	reg.MustRegister(sent, failed, dropped)
	return &NotificationMetrics{sent: sent, failed: failed, dropped: dropped}
}

func (m *NotificationMetrics) IncSent(kind string) {
	if m == nil || m.sent == nil {
		return
	}
	m.sent.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *NotificationMetrics) IncFailed(kind string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *NotificationMetrics) IncDropped(kind string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(kind)).Inc()
}
