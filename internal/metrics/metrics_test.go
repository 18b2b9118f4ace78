package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("room", "live")
	m.Admission("connected")
	m.Swept("invitation", 3)
	m.Notification("mail", nil)
	m.ChatMessage()
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Transition("room", "live")
	m.Transition("room", "live")
	m.Notification("mail", errors.New("boom"))
	m.Swept("participant", 0)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("room", "live")); got != 2 {
		t.Fatalf("transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("mail", "error")); got != 1 {
		t.Fatalf("notifications = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.swept); got != 0 {
		t.Fatalf("swept series = %d, want 0", got)
	}
}
