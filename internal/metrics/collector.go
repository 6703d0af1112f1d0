package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/casino-client/pkg/connection"
	"github.com/rickgao/casino-client/pkg/events"
	"github.com/rickgao/casino-client/pkg/protocol"
)

const namespace = "casino_client"

// Error kinds used as the "kind" label of errors_total.
const (
	ErrorKindParse     = "parse"
	ErrorKindTransport = "transport"
	ErrorKindOther     = "other"
)

// Source is the connection being observed. *connection.Manager implements it.
type Source interface {
	events.Subscriber
	Status() connection.Status
	Pending() int
}

// Collector turns bus events into Prometheus series.
type Collector struct {
	src Source
	reg prometheus.Registerer

	connects    prometheus.Counter
	disconnects prometheus.Counter
	reconnects  prometheus.Counter
	errors      *prometheus.CounterVec
	messages    *prometheus.CounterVec
	pingLatency prometheus.Histogram
	status      prometheus.GaugeFunc
	pending     prometheus.GaugeFunc

	listeners map[events.Kind]events.ListenerID
}

// New registers the collector's series on reg and subscribes to src.
func New(reg prometheus.Registerer, src Source) (*Collector, error) {
	c := &Collector{
		src: src,
		reg: reg,
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful connections, including reconnects.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Transitions out of the connected state.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors published by the transport, by kind.",
		}, []string{"kind"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound packets, by packet type.",
		}, []string{"type"}),
		pingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_latency_seconds",
			Help:      "Keepalive probe round-trip time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		listeners: make(map[events.Kind]events.ListenerID),
	}
	c.status = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_status",
		Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting.",
	}, func() float64 { return float64(src.Status()) })
	c.pending = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Requests awaiting a response.",
	}, func() float64 { return float64(src.Pending()) })

	var registered []prometheus.Collector
	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, err
		}
		registered = append(registered, col)
	}

	c.listeners[events.KindConnected] = src.On(events.KindConnected, func(events.Event) { c.connects.Inc() })
	c.listeners[events.KindDisconnected] = src.On(events.KindDisconnected, func(events.Event) { c.disconnects.Inc() })
	c.listeners[events.KindReconnecting] = src.On(events.KindReconnecting, func(events.Event) { c.reconnects.Inc() })
	c.listeners[events.KindError] = src.On(events.KindError, c.onError)
	c.listeners[events.KindMessage] = src.On(events.KindMessage, c.onMessage)
	c.listeners[events.KindPing] = src.On(events.KindPing, c.onPing)

	return c, nil
}

// Close unsubscribes from the source and unregisters every series.
func (c *Collector) Close() {
	for kind, id := range c.listeners {
		c.src.Off(kind, id)
	}
	c.listeners = map[events.Kind]events.ListenerID{}
	c.unregister()
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.connects, c.disconnects, c.reconnects,
		c.errors, c.messages, c.pingLatency,
		c.status, c.pending,
	}
}

func (c *Collector) unregister() {
	for _, col := range c.collectors() {
		c.reg.Unregister(col)
	}
}

func (c *Collector) onError(ev events.Event) {
	c.errors.WithLabelValues(ErrorKind(ev.Err)).Inc()
}

func (c *Collector) onMessage(ev events.Event) {
	if ev.Packet == nil {
		return
	}
	c.messages.WithLabelValues(ev.Packet.Type).Inc()
}

func (c *Collector) onPing(ev events.Event) {
	c.pingLatency.Observe(ev.Latency.Seconds())
}

// ErrorKind classifies a published error for the kind label.
func ErrorKind(err error) string {
	var pe *protocol.ParseError
	if errors.As(err, &pe) {
		return ErrorKindParse
	}
	var te *connection.TransportError
	if errors.As(err, &te) {
		return ErrorKindTransport
	}
	return ErrorKindOther
}

// Handler serves the registry's metrics in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
