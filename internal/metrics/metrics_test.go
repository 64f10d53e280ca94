package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector("test")

	c.TicketJoined("main", 1.5, 1.5)
	c.TicketJoined("main", 2, 3.5)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tickets.WithLabelValues("main")))
	assert.Equal(t, 3.5, testutil.ToFloat64(c.pot.WithLabelValues("main")))

	c.RoundClosed("main", "settled")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pot.WithLabelValues("main")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rounds.WithLabelValues("main", "settled")))

	c.PayoutAttempt("main", "relay", "paid", 120*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.payouts.WithLabelValues("main", "paid")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "test_round_tickets_total")
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.TicketJoined("main", 1, 1)
		c.RoundClosed("main", "empty")
		c.SettlementFailed("main")
		c.PayoutAttempt("main", "noop", "paid", 0)
		c.HTTPRequest("GET", "/", 200)
	})
}
