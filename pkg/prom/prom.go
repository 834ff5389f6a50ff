// Package prom owns the Prometheus collectors of the api and processor
// binaries. Helpers are no-ops until Create has registered the collectors, so
// services and tests can call them unconditionally.
package prom

import (
	"strconv"
	"sync"
	"time"

	xhttp "github.com/kryos/kryos-api/pkg/http"
	"github.com/kryos/kryos-api/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemHTTP     = "http"
	SystemPayments = "payments"
	SystemApproval = "approval"
	SystemMedia    = "media"
	SystemReceipts = "receipts"
)

type collectors struct {
	requestDuration *prometheus.HistogramVec
	ordersCreated   *prometheus.CounterVec
	recorded        *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	mediaOps        *prometheus.CounterVec
	receipts        *prometheus.CounterVec
	queueBacklog    *prometheus.GaugeVec
}

var (
	mu      sync.RWMutex
	current *collectors
)

// Create registers the collectors on the default registry. Calling it a
// second time is an error from the registry.
func Create(host string, env string, namespace string) error {
	labels := prometheus.Labels{"env": env, "instance": host}

	histogram := func(subsystem, name, help string, buckets []float64, keys ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
			ConstLabels: labels, Buckets: buckets,
		}, keys)
	}
	counter := func(subsystem, name, help string, keys ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
			ConstLabels: labels,
		}, keys)
	}

	c := &collectors{
		requestDuration: histogram(SystemHTTP, "request_duration_seconds", "API latency by route.", prometheus.DefBuckets, "method", "route", "status"),
		ordersCreated:   counter(SystemPayments, "orders_created_total", "Gateway orders requested.", "result"),
		recorded:        counter(SystemPayments, "transactions_recorded_total", "Transactions persisted by status.", "status"),
		gatewayDuration: histogram(SystemPayments, "gateway_duration_seconds", "Payment gateway call latency.", []float64{.05, .1, .25, .5, 1, 2.5, 5, 10}, "operation"),
		transitions:     counter(SystemApproval, "transitions_total", "Approval ledger transitions.", "to"),
		mediaOps:        counter(SystemMedia, "operations_total", "Object store operations.", "operation", "result"),
		receipts:        counter(SystemReceipts, "sent_total", "Receipt and digest mails.", "kind", "result"),
		queueBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: SystemReceipts, Name: "queue_backlog", Help: "Unacked and dead lettered stream entries.",
			ConstLabels: labels,
		}, []string{"state"}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration, c.ordersCreated, c.recorded, c.gatewayDuration,
		c.transitions, c.mediaOps, c.receipts, c.queueBacklog,
	} {
		if err := prometheus.Register(col); err != nil {
			return err
		}
	}

	mu.Lock()
	current = c
	mu.Unlock()
	return nil
}

func enabled() *collectors {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Handler exposes the default registry as a fasthttp handler.
func Handler() xhttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

// ListenAndServer runs a dedicated metrics server. It blocks.
func ListenAndServer(addr string, url string) {
	s := xhttp.CreateServer(func(o *xhttp.ServerOption) {
		o.Name = "kryos-metrics"
	})
	s.GET(url, Handler())
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

// HTTPMiddleware observes request latency by matched route.
func HTTPMiddleware(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		if c := enabled(); c != nil {
			c.requestDuration.WithLabelValues(string(ctx.Method()), xhttp.MatchedRoute(ctx),
				strconv.Itoa(ctx.Response.StatusCode())).Observe(time.Since(start).Seconds())
		}
	}
}

func IncOrderCreated(result string) {
	if c := enabled(); c != nil {
		c.ordersCreated.WithLabelValues(result).Inc()
	}
}

func IncTransactionRecorded(status string) {
	if c := enabled(); c != nil {
		c.recorded.WithLabelValues(status).Inc()
	}
}

func ObserveGateway(operation string, d time.Duration) {
	if c := enabled(); c != nil {
		c.gatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// IncApprovalTransition adds n transitions into status to.
func IncApprovalTransition(to string, n int) {
	if c := enabled(); c != nil && n > 0 {
		c.transitions.WithLabelValues(to).Add(float64(n))
	}
}

func IncMediaOperation(operation, result string) {
	if c := enabled(); c != nil {
		c.mediaOps.WithLabelValues(operation, result).Inc()
	}
}

func IncReceiptSent(kind, result string) {
	if c := enabled(); c != nil {
		c.receipts.WithLabelValues(kind, result).Inc()
	}
}

func SetQueueBacklog(pending, dead int64) {
	if c := enabled(); c != nil {
		c.queueBacklog.WithLabelValues("pending").Set(float64(pending))
		c.queueBacklog.WithLabelValues("dead").Set(float64(dead))
	}
}
