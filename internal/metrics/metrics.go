package metrics

import "time"

// Metrics interface for dependency injection
type Metrics interface {
	RecordCheckout(provider, variant, status string)
	RecordEventFlush(count int, status string)
	RecordResolve(status string)
	RecordBackendCall(operation, status string, duration time.Duration)
}

// NoOpMetrics provides a no-op implementation
type NoOpMetrics struct{}

func (m *NoOpMetrics) RecordCheckout(provider, variant, status string)                    {}
func (m *NoOpMetrics) RecordEventFlush(count int, status string)                          {}
func (m *NoOpMetrics) RecordResolve(status string)                                        {}
func (m *NoOpMetrics) RecordBackendCall(operation, status string, duration time.Duration) {}

// Global metrics instance
var globalMetrics Metrics = &NoOpMetrics{}

// SetMetrics swaps the global metrics implementation
func SetMetrics(m Metrics) {
	if m != nil {
		globalMetrics = m
	}
}

// RecordCheckout records a checkout attempt outcome
func RecordCheckout(provider, variant, status string) {
	globalMetrics.RecordCheckout(provider, variant, status)
}

// RecordEventFlush records an outbox flush
func RecordEventFlush(count int, status string) {
	globalMetrics.RecordEventFlush(count, status)
}

// RecordResolve records a placement resolution outcome
func RecordResolve(status string) {
	globalMetrics.RecordResolve(status)
}

// RecordBackendCall records a backend API call
func RecordBackendCall(operation, status string, duration time.Duration) {
	globalMetrics.RecordBackendCall(operation, status, duration)
}
