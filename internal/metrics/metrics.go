// Package metrics holds the Prometheus collectors for the service.
//
// Collectors are registered with the default registry at init, so
// Handler exposes everything, including the Go runtime collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunchbox_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lunchbox_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	friendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunchbox_friend_requests_total",
			Help: "Friend request outcomes (sent, accepted, declined).",
		},
		[]string{"outcome"},
	)
	commentsPostedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lunchbox_comments_posted_total",
			Help: "Total number of comments posted.",
		},
	)
	imageUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunchbox_image_uploads_total",
			Help: "Image uploads by result (ok, rejected, failed).",
		},
		[]string{"result"},
	)
	orphanedImagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lunchbox_orphaned_images_total",
			Help: "Uploaded images left in storage after a failed row write.",
		},
	)
	eventPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lunchbox_event_publish_errors_total",
			Help: "Total number of domain event publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		friendRequestsTotal,
		commentsPostedTotal,
		imageUploadsTotal,
		orphanedImagesTotal,
		eventPublishErrorsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTP records request count and latency labelled by the chi route pattern,
// so /api/lists/{id} is one series no matter how many lists exist.
func HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	// unmatched routes share one label to keep cardinality bounded
	return "unmatched"
}

// Friend request outcomes.
const (
	OutcomeSent     = "sent"
	OutcomeAccepted = "accepted"
	OutcomeDeclined = "declined"
)

// Image upload results.
const (
	UploadOK       = "ok"
	UploadRejected = "rejected"
	UploadFailed   = "failed"
)

func IncFriendRequest(outcome string) {
	friendRequestsTotal.WithLabelValues(outcome).Inc()
}

func IncCommentPosted() {
	commentsPostedTotal.Inc()
}

func IncImageUpload(result string) {
	imageUploadsTotal.WithLabelValues(result).Inc()
}

func IncOrphanedImage() {
	orphanedImagesTotal.Inc()
}

func IncEventPublishError() {
	eventPublishErrorsTotal.Inc()
}
