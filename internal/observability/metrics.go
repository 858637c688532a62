package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/riskibarqy/footybot-roster/internal/usecase"
)

const metricsNamespace = "roster"

// RunMetrics records roster run telemetry into a private registry and pushes
// it to a Prometheus Pushgateway once the run ends.
type RunMetrics struct {
	registry      *prometheus.Registry
	teamFetch     *prometheus.CounterVec
	imageDownload *prometheus.CounterVec
	players       prometheus.Counter
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge

	pushURL string
	job     string
}

func NewRunMetrics(pushURL, job string) *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		teamFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "team_fetch_total",
			Help:      "Teams processed, by outcome.",
		}, []string{"status"}),
		imageDownload: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "image_download_total",
			Help:      "Player image downloads, by outcome.",
		}, []string{"status"}),
		players: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "players_total",
			Help:      "Player records produced by the run.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last roster run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_write_timestamp_seconds",
			Help:      "Unix time the roster file was last written.",
		}),
		pushURL: strings.TrimSpace(pushURL),
		job:     strings.TrimSpace(job),
	}
	if m.job == "" {
		m.job = "footybot-roster"
	}

	m.registry.MustRegister(m.teamFetch, m.imageDownload, m.players, m.runDuration, m.lastSuccess)
	for _, status := range []usecase.TeamStatus{usecase.TeamStatusSuccess, usecase.TeamStatusSkipped, usecase.TeamStatusFailed} {
		m.teamFetch.WithLabelValues(string(status))
	}
	for _, status := range []usecase.ImageStatus{usecase.ImageStatusDownloaded, usecase.ImageStatusSkipped, usecase.ImageStatusFailed} {
		m.imageDownload.WithLabelValues(string(status))
	}
	return m
}

func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *RunMetrics) ObserveTeam(status usecase.TeamStatus) {
	m.teamFetch.WithLabelValues(string(status)).Inc()
}

func (m *RunMetrics) ObserveImage(status usecase.ImageStatus) {
	m.imageDownload.WithLabelValues(string(status)).Inc()
}

func (m *RunMetrics) ObserveRun(result usecase.RunResult, duration time.Duration) {
	m.players.Add(float64(result.PlayerCount))
	m.runDuration.Set(duration.Seconds())
	if result.OutputWritten {
		m.lastSuccess.SetToCurrentTime()
	}
}

// PushEnabled reports whether a Pushgateway is configured.
func (m *RunMetrics) PushEnabled() bool {
	return m.pushURL != ""
}

// Push sends the registry to the Pushgateway, replacing the job's previous
// group. It is a no-op without a configured URL.
func (m *RunMetrics) Push(ctx context.Context) error {
	if !m.PushEnabled() {
		return nil
	}
	if err := push.New(m.pushURL, m.job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push run metrics: %w", err)
	}
	return nil
}
