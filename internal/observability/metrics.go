package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    prometheus.Gauge
	enqueueTotal *prometheus.CounterVec
	dequeueTotal prometheus.Counter
	clearedTotal prometheus.Counter

	taskTotal    *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	schedulerFires   *prometheus.CounterVec
	schedulerSkipped *prometheus.CounterVec

	sessionExchanges *prometheus.CounterVec
	sessionRotations *prometheus.CounterVec
	sessionSettle    *prometheus.CounterVec
	sessionMessages  prometheus.Gauge

	agentState *prometheus.GaugeVec
	loopErrors prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "warden_queue_size",
					Help: "Pending tasks in the priority queue.",
				},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_enqueue_total",
					Help: "Total enqueued tasks by source.",
				},
				[]string{"source"},
			),
			dequeueTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "warden_dequeue_total",
					Help: "Total dequeued tasks.",
				},
			),
			clearedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "warden_queue_cleared_total",
					Help: "Total tasks discarded by queue clears.",
				},
			),
			taskTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_task_total",
					Help: "Total executed tasks by status.",
				},
				[]string{"status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "warden_task_duration_seconds",
					Help:    "Task execution duration in seconds by session kind.",
					Buckets: []float64{1, 5, 10, 30, 60, 90, 120, 300},
				},
				[]string{"session"},
			),
			schedulerFires: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_scheduler_fires_total",
					Help: "Schedule entries fired by entry name.",
				},
				[]string{"entry"},
			),
			schedulerSkipped: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_scheduler_skipped_total",
					Help: "Schedule entries skipped at init by reason.",
				},
				[]string{"reason"},
			),
			sessionExchanges: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_session_exchanges_total",
					Help: "Session exchanges by session kind and status.",
				},
				[]string{"session", "status"},
			),
			sessionRotations: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_session_rotations_total",
					Help: "Session rotations by session kind.",
				},
				[]string{"session"},
			),
			sessionSettle: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_session_settle_total",
					Help: "Stability polling outcomes (settled or timeout).",
				},
				[]string{"outcome"},
			),
			sessionMessages: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "warden_session_messages",
					Help: "Exchanges in the current conversation.",
				},
			),
			agentState: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "warden_agent_state",
					Help: "Agent lifecycle state (1 for the active state).",
				},
				[]string{"state"},
			),
			loopErrors: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "warden_loop_errors_total",
					Help: "Worker loop iterations that ended in an error.",
				},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.clearedTotal,
			m.taskTotal,
			m.taskDuration,
			m.schedulerFires,
			m.schedulerSkipped,
			m.sessionExchanges,
			m.sessionRotations,
			m.sessionSettle,
			m.sessionMessages,
			m.agentState,
			m.loopErrors,
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

func RecordEnqueue(source string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(source).Inc()
	m.queueSize.Set(float64(queueSize))
}

func RecordDequeue(queueSize int) {
	m := getMetrics()
	m.dequeueTotal.Inc()
	m.queueSize.Set(float64(queueSize))
}

func RecordQueueCleared(count int) {
	m := getMetrics()
	m.clearedTotal.Add(float64(count))
	m.queueSize.Set(0)
}

func RecordTask(session string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.taskTotal.WithLabelValues(status).Inc()
	m.taskDuration.WithLabelValues(session).Observe(duration.Seconds())
}

func RecordSchedulerFire(entry string) {
	getMetrics().schedulerFires.WithLabelValues(entry).Inc()
}

func RecordSchedulerSkip(reason string) {
	getMetrics().schedulerSkipped.WithLabelValues(reason).Inc()
}

func RecordExchange(session string, success bool, messageCount int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.sessionExchanges.WithLabelValues(session, status).Inc()
	m.sessionMessages.Set(float64(messageCount))
}

func RecordRotation(session string) {
	m := getMetrics()
	m.sessionRotations.WithLabelValues(session).Inc()
	m.sessionMessages.Set(0)
}

func RecordSettle(settled bool) {
	outcome := "timeout"
	if settled {
		outcome = "settled"
	}
	getMetrics().sessionSettle.WithLabelValues(outcome).Inc()
}

// SetAgentState marks state as the only active lifecycle state.
func SetAgentState(state string, all []string) {
	m := getMetrics()
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1.0
		}
		m.agentState.WithLabelValues(s).Set(value)
	}
}

func RecordLoopError() {
	getMetrics().loopErrors.Inc()
}
