package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetConnectionState(t *testing.T) {
	states := []string{"connecting", "subscribed", "reconnecting"}
	SetConnectionState(states, "subscribed")
	for _, s := range states {
		want := 0.0
		if s == "subscribed" {
			want = 1
		}
		if got := testutil.ToFloat64(ConnectionState.WithLabelValues(s)); got != want {
			t.Errorf("state %s = %v, want %v", s, got, want)
		}
	}
	SetConnectionState(states, "reconnecting")
	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("subscribed")); got != 0 {
		t.Errorf("previous state still active: %v", got)
	}
}
