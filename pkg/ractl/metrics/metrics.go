package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds only ractl's own collectors so textfile exports stay small.
var Registry = prometheus.NewRegistry()

var (
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ractl_api_requests_total",
		Help: "Total number of requests sent to the Resource Allocator API",
	}, []string{"method", "endpoint", "code"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ractl_api_request_duration_seconds",
		Help:    "Latency of requests sent to the Resource Allocator API",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ractl_login_attempts_total",
		Help: "Total number of fresh logins grouped by mode and outcome",
	}, []string{"mode", "result"})
	TokenCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ractl_token_cache_lookups_total",
		Help: "Token cache reads grouped by outcome (hit, stale, miss)",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(APIRequests)
	Registry.MustRegister(APIRequestDuration)
	Registry.MustRegister(LoginAttempts)
	Registry.MustRegister(TokenCacheLookups)
}

// WriteTextfile writes the current metric values to path. The file is
// written to a temporary name first and renamed into place.
func WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics file path is required")
	}
	return prometheus.WriteToTextfile(path, Registry)
}
