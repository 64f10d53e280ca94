// Package metrics exposes jackpot telemetry through a private prometheus registry.
// Every method is safe on a nil *Collector so components can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	tickets       *prometheus.CounterVec
	stakes        *prometheus.CounterVec
	pot           *prometheus.GaugeVec
	rounds        *prometheus.CounterVec
	settleErrors  *prometheus.CounterVec
	payouts       *prometheus.CounterVec
	payoutLatency *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "jackpot"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.tickets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "round", Name: "tickets_total",
		Help: "Tickets accepted",
	}, []string{"room"})
	c.stakes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "round", Name: "stake_sol_total",
		Help: "Stake accepted in SOL",
	}, []string{"room"})
	c.pot = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "round", Name: "pot_sol",
		Help: "Pot of the round currently accepting bets",
	}, []string{"room"})
	c.rounds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "round", Name: "closed_total",
		Help: "Rounds closed by outcome (settled, forced, empty)",
	}, []string{"room", "outcome"})
	c.settleErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "round", Name: "settlement_errors_total",
		Help: "Settlement attempts that failed and were retried",
	}, []string{"room"})
	c.payouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "payout", Name: "attempts_total",
		Help: "Payout attempts by resulting status",
	}, []string{"room", "status"})
	c.payoutLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "payout", Name: "duration_seconds",
		Help:    "Executor latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"executor"})
	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"method", "route", "code"})

	c.registry.MustRegister(
		c.tickets, c.stakes, c.pot, c.rounds, c.settleErrors,
		c.payouts, c.payoutLatency, c.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) TicketJoined(room string, amount float64, pot float64) {
	if c == nil {
		return
	}
	c.tickets.WithLabelValues(room).Inc()
	c.stakes.WithLabelValues(room).Add(amount)
	c.pot.WithLabelValues(room).Set(pot)
}

func (c *Collector) RoundClosed(room, outcome string) {
	if c == nil {
		return
	}
	c.rounds.WithLabelValues(room, outcome).Inc()
	c.pot.WithLabelValues(room).Set(0)
}

func (c *Collector) SettlementFailed(room string) {
	if c == nil {
		return
	}
	c.settleErrors.WithLabelValues(room).Inc()
}

func (c *Collector) PayoutAttempt(room, executor, status string, took time.Duration) {
	if c == nil {
		return
	}
	c.payouts.WithLabelValues(room, status).Inc()
	c.payoutLatency.WithLabelValues(executor).Observe(took.Seconds())
}

func (c *Collector) HTTPRequest(method, route string, code int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
