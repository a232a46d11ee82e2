package middleware

import (
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

// RequestMetrics counts and times the requests this instance serves. Routes
// are labelled by their matched pattern, which needs SaveMatchedRoutePath
// on the router; anything else is "unmatched".
func RequestMetrics(reg prometheus.Registerer) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbontracker",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route pattern, method and status.",
		},
		[]string{"route", "method", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carbontracker",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)
	reg.MustRegister(requests, duration)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)

			route, _ := ctx.UserValue(router.MatchedRoutePathParam).(string)
			if route == "" {
				route = "unmatched"
			}
			method := string(ctx.Method())
			requests.WithLabelValues(route, method, strconv.Itoa(ctx.Response.StatusCode())).Inc()
			duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		}
	}
}
