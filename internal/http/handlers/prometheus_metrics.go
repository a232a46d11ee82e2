package handlers

import (
	"bytes"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
)

const metricsNamespace = "carbontracker"

var (
	uploadsTotal             *prometheus.CounterVec
	uploadRowsTotal          *prometheus.CounterVec
	recommendationsGenerated prometheus.Counter
	uploadDuration           prometheus.Histogram

	initMetricsOnce sync.Once
)

// InitPrometheusMetrics registers the upload metrics with the default
// registry. Safe to call more than once.
func InitPrometheusMetrics() {
	initMetricsOnce.Do(func() {
		uploadsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "uploads_total",
				Help:      "Uploaded export files by terminal batch status.",
			},
			[]string{"status"},
		)
		uploadRowsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upload_rows_total",
				Help:      "Data rows seen in uploads, by outcome.",
			},
			[]string{"outcome"},
		)
		recommendationsGenerated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "recommendations_generated_total",
				Help:      "New recommendations stored after uploads.",
			},
		)
		uploadDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "upload_duration_seconds",
				Help:      "Time to process one uploaded file end to end.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)
		prometheus.MustRegister(uploadsTotal, uploadRowsTotal, recommendationsGenerated, uploadDuration)
	})
}

// MetricsHandler exposes this service's own metric families in the text
// exposition format.
func MetricsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}

		filtered := make([]*dto.MetricFamily, 0, len(metricFamilies))
		for _, mf := range metricFamilies {
			if strings.HasPrefix(mf.GetName(), metricsNamespace+"_") {
				filtered = append(filtered, mf)
			}
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
		for _, mf := range filtered {
			if err := encoder.Encode(mf); err != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("failed to encode metrics")
				return
			}
		}

		ctx.SetContentType(string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}
