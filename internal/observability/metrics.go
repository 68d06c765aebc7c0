package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	connectedClients    prometheus.Gauge
	broadcastTotal      *prometheus.CounterVec
	messagesTotal       *prometheus.CounterVec
	evictionsTotal      *prometheus.CounterVec
	sessionSaveDuration prometheus.Histogram
	sessionSaveTotal    *prometheus.CounterVec
	imagesProcessed     prometheus.Counter
	processDuration     prometheus.Histogram
	queueSize           *prometheus.GaugeVec
	taskDuration        *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			connectedClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "loratag_connected_clients",
					Help: "Current number of connected websocket clients.",
				},
			),
			broadcastTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "loratag_broadcast_deliveries_total",
					Help: "Total broadcast deliveries by status.",
				},
				[]string{"status"},
			),
			messagesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "loratag_client_messages_total",
					Help: "Total client messages handled by type.",
				},
				[]string{"type"},
			),
			evictionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "loratag_client_evictions_total",
					Help: "Total client evictions by reason.",
				},
				[]string{"reason"},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "loratag_session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "loratag_session_saves_total",
					Help: "Total session save attempts by status.",
				},
				[]string{"status"},
			),
			imagesProcessed: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "loratag_images_processed_total",
					Help: "Total images copied and renamed by the pipeline.",
				},
			),
			processDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "loratag_image_process_duration_seconds",
					Help:    "Single image processing duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "loratag_queue_size",
					Help: "Current background queue size by lane.",
				},
				[]string{"lane"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "loratag_task_duration_seconds",
					Help:    "Background task duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
		}

		prometheus.MustRegister(
			m.connectedClients,
			m.broadcastTotal,
			m.messagesTotal,
			m.evictionsTotal,
			m.sessionSaveDuration,
			m.sessionSaveTotal,
			m.imagesProcessed,
			m.processDuration,
			m.queueSize,
			m.taskDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetConnectedClients(count int) {
	getMetrics().connectedClients.Set(float64(count))
}

func RecordBroadcast(success, failed int) {
	m := getMetrics()
	m.broadcastTotal.WithLabelValues("success").Add(float64(success))
	m.broadcastTotal.WithLabelValues("failed").Add(float64(failed))
}

func RecordClientMessage(msgType string) {
	getMetrics().messagesTotal.WithLabelValues(msgType).Inc()
}

func RecordEviction(reason string) {
	getMetrics().evictionsTotal.WithLabelValues(reason).Inc()
}

func RecordSessionSave(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.sessionSaveTotal.WithLabelValues(status).Inc()
	m.sessionSaveDuration.Observe(duration.Seconds())
}

func RecordImageProcessed(duration time.Duration) {
	m := getMetrics()
	m.imagesProcessed.Inc()
	m.processDuration.Observe(duration.Seconds())
}

func SetQueueSize(lane string, size int) {
	getMetrics().queueSize.WithLabelValues(lane).Set(float64(size))
}

func RecordTaskCompletion(lane string, duration time.Duration) {
	getMetrics().taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
}
