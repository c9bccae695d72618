package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "weatherbot_"

	FetchSuccess     = "success"
	FetchUnavailable = "unavailable"
	FetchRejected    = "breaker_open"

	PublishSent        = "sent"
	PublishFailed      = "failed"
	PublishRateLimited = "rate_limited"

	AlertPublished = "published"
	AlertDuplicate = "duplicate"
	AlertNone      = "none"

	SourceLive   = "live"
	SourceCache  = "cache"
	SourceMerged = "merged"
	SourceNone   = "none"
)

var (
	registerOnce sync.Once

	fetchAttempts   *prometheus.CounterVec
	fetchTotal      *prometheus.CounterVec
	publishTotal    *prometheus.CounterVec
	alertDecisions  *prometheus.CounterVec
	forecastSources *prometheus.CounterVec
	jobLatency      *prometheus.HistogramVec
)

// Init registers the bot's collectors with the default registry. Observe
// calls made before Init are dropped.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		fetchAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_attempts_total",
				Help: "Provider HTTP attempts by result",
			},
			[]string{"result"},
		)
		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_total",
				Help: "Provider fetches after retries by outcome",
			},
			[]string{"outcome"},
		)
		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "publish_total",
				Help: "Publish calls by message kind and result",
			},
			[]string{"kind", "result"},
		)
		alertDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_decisions_total",
				Help: "Alert check cycles by decision",
			},
			[]string{"decision"},
		)
		forecastSources = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "forecast_source_total",
				Help: "Forecast summaries by data source",
			},
			[]string{"source"},
		)
		jobLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "job_duration_seconds",
				Help:    "Scheduled job duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900, 1800},
			},
			[]string{"job"},
		)

		reg.MustRegister(fetchAttempts, fetchTotal, publishTotal, alertDecisions, forecastSources, jobLatency)
	})
}

func ObserveFetchAttempt(ok bool) {
	if fetchAttempts == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	fetchAttempts.WithLabelValues(result).Inc()
}

func ObserveFetch(outcome string) {
	if fetchTotal == nil {
		return
	}
	fetchTotal.WithLabelValues(outcome).Inc()
}

func ObservePublish(kind, result string) {
	if publishTotal == nil {
		return
	}
	publishTotal.WithLabelValues(kind, result).Inc()
}

func ObserveAlertDecision(decision string) {
	if alertDecisions == nil {
		return
	}
	alertDecisions.WithLabelValues(decision).Inc()
}

func ObserveForecastSource(source string) {
	if forecastSources == nil {
		return
	}
	forecastSources.WithLabelValues(source).Inc()
}

func ObserveJob(job string, duration time.Duration) {
	if jobLatency == nil {
		return
	}
	jobLatency.WithLabelValues(job).Observe(duration.Seconds())
}
