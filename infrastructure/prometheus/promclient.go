package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var OpenOrderBooksGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "open_order_books",
		Help: "number of symbols with a live local order book",
	},
)

var LiveSubscribersGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "book_subscribers",
		Help: "number of active order book subscribers",
	},
)

var ResyncTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "book_resyncs_total",
		Help: "order book resyncs forced by gaps, overflows or transport failures",
	},
	[]string{"symbol"},
)

var MalformedUpdatesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "malformed_depth_updates_total",
		Help: "depth stream messages dropped because they failed schema validation",
	},
	[]string{"symbol"},
)

var SubscriberOverflowsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "subscriber_queue_overflows_total",
		Help: "subscriber queue overflows resolved by a full-snapshot resend",
	},
	[]string{"symbol"},
)

func StartPromClientServer(addr string) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(OpenOrderBooksGauge)
	reg.MustRegister(LiveSubscribersGauge)
	reg.MustRegister(ResyncTotal)
	reg.MustRegister(MalformedUpdatesTotal)
	reg.MustRegister(SubscriberOverflowsTotal)
	reg.MustRegister(collectors.NewGoCollector())

	http.Handle("/metrics", promHandler)
	logrus.Printf("prometheus server listening at %s", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		logrus.Fatalf("failed to serve: %v", err)
	}
}
