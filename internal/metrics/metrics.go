package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_delivered_total",
		Help: "Messages advanced to delivered by the bus consumer",
	})
	PublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_publish_failures_total",
		Help: "Kafka publishes that exhausted their retries",
	}, []string{"topic"})
)

func Init() {
	prometheus.MustRegister(Connections, MessagesDelivered, PublishFailures)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
