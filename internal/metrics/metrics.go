// Package metrics 定義服務對外的 prometheus 指標。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "interview"

// Metrics 所有方法在 nil receiver 上都是 no-op，測試可以直接傳 nil
type Metrics struct {
	transitions   *prometheus.CounterVec
	admissions    *prometheus.CounterVec
	swept         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	chatMessages  prometheus.Counter
}

// New 建立並註冊指標；reg 為 nil 時使用 prometheus.DefaultRegisterer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "State transitions applied, by entity and target status.",
		}, []string{"entity", "to"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Join attempts by outcome.",
		}, []string{"outcome"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_resolved_total",
			Help:      "Rows resolved by the periodic sweeps.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound requests to external collaborators, by kind and result.",
		}, []string{"kind", "result"}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages accepted.",
		}),
	}
	reg.MustRegister(m.transitions, m.admissions, m.swept, m.notifications, m.chatMessages)
	return m
}

func (m *Metrics) Transition(entity, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, to).Inc()
}

func (m *Metrics) Admission(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Swept(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ChatMessage() {
	if m == nil {
		return
	}
	m.chatMessages.Inc()
}
