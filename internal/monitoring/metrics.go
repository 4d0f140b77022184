package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Abrham-amplitude/solana-ticket/internal/models"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
)

// Metrics holds every collector of the service, registered on one registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	rpcCalls          *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	tickets           *prometheus.GaugeVec
	listenerEvents    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_operations_total",
				Help: "Engine operations by outcome kind",
			},
			[]string{"operation", "kind"},
		),
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_operation_duration_seconds",
				Help:    "Duration of engine operations, confirmation included",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"operation"},
		),
		rpcCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Ledger RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		rpcDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_duration_seconds",
				Help:    "Ledger RPC latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		tickets: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickets_registered",
				Help: "Registered tickets per kind and status",
			},
			[]string{"kind", "status"},
		),
		listenerEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_listener_events_total",
				Help: "Log notifications handled by the ticket watcher",
			},
			[]string{"type"},
		),
	}
}

// ObserveOperation implements services.Metrics.
func (m *Metrics) ObserveOperation(op string, took time.Duration, err error) {
	kind := services.Kind(err)
	if kind == "" {
		kind = "ok"
	}
	m.operations.WithLabelValues(op, kind).Inc()
	m.operationDuration.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveRPC matches ledger.Options.Observe.
func (m *Metrics) ObserveRPC(method string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) ObserveHTTP(route, method string, status int, took time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

func (m *Metrics) TrackListenerEvent(typ string) {
	m.listenerEvents.WithLabelValues(typ).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// TicketLister is the part of the registry the collector reads.
type TicketLister interface {
	ListTickets(ctx context.Context, f services.TicketFilter) ([]models.Ticket, error)
}

// CollectRegistry refreshes the ticket gauges from the registry.
func (m *Metrics) CollectRegistry(ctx context.Context, store TicketLister) error {
	list, err := store.ListTickets(ctx, services.TicketFilter{})
	if err != nil {
		return err
	}
	counts := make(map[[2]string]int)
	for _, t := range list {
		counts[[2]string{string(t.Kind), string(t.Status)}]++
	}
	m.tickets.Reset()
	for k, n := range counts {
		m.tickets.WithLabelValues(k[0], k[1]).Set(float64(n))
	}
	return nil
}

// RunCollector refreshes the registry gauges every interval until ctx ends.
func (m *Metrics) RunCollector(ctx context.Context, store TicketLister, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = m.CollectRegistry(ctx, store)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
