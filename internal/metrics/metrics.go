package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal     *prometheus.CounterVec
	votesTotal            *prometheus.CounterVec
	wsConnections         prometheus.Gauge
	notificationsTotal    *prometheus.CounterVec
	fanoutQueueOverflow   prometheus.Counter
	pollsPurgedTotal      prometheus.Counter
	rateWindowsSweptTotal prometheus.Counter
	registerOnce          sync.Once
)

// Register initializes Prometheus metrics on the default registry.
func Register() {
	registerOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livepoll",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the API.",
		}, []string{"method", "path", "status"})
		votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livepoll",
			Name:      "votes_total",
			Help:      "Vote attempts by outcome.",
		}, []string{"outcome"})
		wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "livepoll",
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		})
		notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livepoll",
			Name:      "notifications_total",
			Help:      "Tally notifications handed to subscribers, by result.",
		}, []string{"result"})
		fanoutQueueOverflow = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "livepoll",
			Name:      "fanout_queue_overflow_total",
			Help:      "Tally changes dropped because the fanout queue was full.",
		})
		pollsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "livepoll",
			Name:      "polls_purged_total",
			Help:      "Expired polls deleted by the janitor.",
		})
		rateWindowsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "livepoll",
			Name:      "rate_windows_swept_total",
			Help:      "Idle origins dropped from the vote rate limiter.",
		})
	})
}

// IncRequest increments the http_requests_total counter with the given labels.
func IncRequest(method, path string, status int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// IncVote counts one vote attempt. outcome is "accepted" or an error code.
func IncVote(outcome string) {
	if votesTotal == nil {
		return
	}
	votesTotal.WithLabelValues(outcome).Inc()
}

func WSConnected() {
	if wsConnections != nil {
		wsConnections.Inc()
	}
}

func WSDisconnected() {
	if wsConnections != nil {
		wsConnections.Dec()
	}
}

func AddNotifications(delivered, dropped int) {
	if notificationsTotal == nil {
		return
	}
	notificationsTotal.WithLabelValues("delivered").Add(float64(delivered))
	notificationsTotal.WithLabelValues("dropped").Add(float64(dropped))
}

func IncFanoutOverflow() {
	if fanoutQueueOverflow != nil {
		fanoutQueueOverflow.Inc()
	}
}

func AddPollsPurged(n int64) {
	if pollsPurgedTotal != nil {
		pollsPurgedTotal.Add(float64(n))
	}
}

func AddRateWindowsSwept(n int) {
	if rateWindowsSweptTotal != nil {
		rateWindowsSweptTotal.Add(float64(n))
	}
}
