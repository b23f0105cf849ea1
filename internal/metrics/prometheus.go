package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "lp_hedge_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	cycles         prometheus.Counter
	symbolFailures prometheus.Counter
	ordersPlaced   prometheus.Counter
	ordersFailed   prometheus.Counter
	ordersCanceled prometheus.Counter
	forceCloses    prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "cycles_total",
		Help:      "Total number of completed reconciliation cycles.",
	})
	symbolFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "symbol_failures_total",
		Help:      "Total number of per-symbol pipeline failures.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	ordersCanceled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_canceled_total",
		Help:      "Total number of orders canceled.",
	})
	forceCloses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "force_closes_total",
		Help:      "Total number of market orders issued to close an out-of-band offset.",
	})

	registry.MustRegister(cycles, symbolFailures, ordersPlaced, ordersFailed, ordersCanceled, forceCloses)

	m := &Metrics{
		CyclesCompleted: promCounter{cycles},
		SymbolFailures:  promCounter{symbolFailures},
		OrdersPlaced:    promCounter{ordersPlaced},
		OrdersFailed:    promCounter{ordersFailed},
		OrdersCanceled:  promCounter{ordersCanceled},
		ForceCloses:     promCounter{forceCloses},
	}

	return &Prometheus{
		Metrics:        m,
		registry:       registry,
		cycles:         cycles,
		symbolFailures: symbolFailures,
		ordersPlaced:   ordersPlaced,
		ordersFailed:   ordersFailed,
		ordersCanceled: ordersCanceled,
		forceCloses:    forceCloses,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
