package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terrana",
			Name:      "bookings_total",
			Help:      "Booking submissions by payment method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terrana",
			Name:      "payments_total",
			Help:      "Gateway charge attempts by classified result.",
		},
		[]string{"result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terrana",
			Name:      "availability_cache_lookups_total",
			Help:      "Availability cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terrana",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookings, payments, cacheLookups, httpRequests)
	})
}

// IncBooking counts a booking submission outcome.
func IncBooking(method, outcome string) {
	bookings.WithLabelValues(method, outcome).Inc()
}

// IncPayment counts a classified gateway result.
func IncPayment(result string) {
	payments.WithLabelValues(result).Inc()
}

// IncCache counts a cache hit or miss.
func IncCache(outcome string) {
	cacheLookups.WithLabelValues(outcome).Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
