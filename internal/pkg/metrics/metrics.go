// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	StampsAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Name:      "stamps_added_total",
		Help:      "Stamps added through scans.",
	}, []string{"business_id"})

	RewardsEarned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Name:      "rewards_earned_total",
		Help:      "Rewards produced by threshold conversion.",
	}, []string{"business_id"})

	RewardsRedeemed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Name:      "rewards_redeemed_total",
		Help:      "Rewards consumed by redemption.",
	}, []string{"business_id"})

	ScanRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Name:      "scan_rejections_total",
		Help:      "Scan operations rejected by a business rule.",
	}, []string{"operation", "code"})

	AuditFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Name:      "audit_failures_total",
		Help:      "Best-effort scan event writes that failed.",
	}, []string{"sink"})

	ConflictRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loyalty",
		Name:      "ledger_conflict_retries_total",
		Help:      "Optimistic version conflicts retried by the ledger.",
	})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loyalty",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(StampsAdded, RewardsEarned, RewardsRedeemed, ScanRejections, AuditFailures, ConflictRetries, HTTPDuration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument 记录某个路由的请求耗时
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		HTTPDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
