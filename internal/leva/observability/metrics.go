package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdobrica/leva/internal/leva/memory"
)

// Metrics groups all Prometheus instruments used by the bot. Each instance
// owns its registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Messages        *prometheus.CounterVec
	Replies         *prometheus.CounterVec
	ReplyLatency    prometheus.Histogram
	Flushes         *prometheus.CounterVec
	FlushLatency    prometheus.Histogram
	EvictedTurns    prometheus.Counter
	ModeratedEvents prometheus.Counter
}

// NewMetrics registers the instruments under namespace, plus the Go and
// process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by kind (command, chat, ignored).",
		}, []string{"kind"}),
		Replies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_replies_total",
			Help:      "Chat completions by outcome.",
		}, []string{"outcome"}),
		ReplyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_reply_seconds",
			Help:      "Time to produce a chat reply, memory included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		Flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_flushes_total",
			Help:      "Short-term to long-term memory flushes by outcome.",
		}, []string{"outcome"}),
		FlushLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_flush_seconds",
			Help:      "Duration of memory flushes, summariser call included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		EvictedTurns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_evicted_turns_total",
			Help:      "Turns dropped from a full short-term buffer before being summarised.",
		}),
		ModeratedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderated_messages_total",
			Help:      "Messages removed by the word filter.",
		}),
	}
}

// FlushCompleted implements memory.Recorder.
func (m *Metrics) FlushCompleted(outcome string, elapsed time.Duration) {
	m.Flushes.WithLabelValues(outcome).Inc()
	m.FlushLatency.Observe(elapsed.Seconds())
}

// TurnsEvicted implements memory.Recorder.
func (m *Metrics) TurnsEvicted(n int) {
	m.EvictedTurns.Add(float64(n))
}

// ObserveReply records one chat completion.
func (m *Metrics) ObserveReply(outcome string, elapsed time.Duration) {
	m.Replies.WithLabelValues(outcome).Inc()
	m.ReplyLatency.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ memory.Recorder = (*Metrics)(nil)
