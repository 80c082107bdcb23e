package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the forum's Prometheus metrics on a private registry so that
// several collectors can coexist in one test binary.
type Collector struct {
	registry *prometheus.Registry

	Mutations         *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	Deliveries        prometheus.Counter
	DroppedClients    prometheus.Counter
	ActiveConnections prometheus.Gauge
}

func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutation requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the broadcaster by event name.",
		}, []string{"event"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_deliveries_total",
			Help:      "Event frames queued to websocket clients.",
		}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_dropped_clients_total",
			Help:      "Websocket clients dropped because their send buffer was full.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_active_connections",
			Help:      "Currently connected websocket clients.",
		}),
	}
	c.registry.MustRegister(
		c.Mutations,
		c.EventsPublished,
		c.Deliveries,
		c.DroppedClients,
		c.ActiveConnections,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
