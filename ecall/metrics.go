package ecall

import (
	metrics "github.com/rcrowley/go-metrics"
)

// Metric names
const (
	MetricDialAttempts      = "ecall.dial.attempts"
	MetricRedialScheduled   = "ecall.redial.scheduled"
	MetricMsdEncoded        = "ecall.msd.encoded"
	MetricMsdEncodeFailures = "ecall.msd.encode.failures"
	MetricSessionsCompleted = "ecall.sessions.completed"
	MetricRedialPeriodEnded = "ecall.redial.period.ended"
	MetricMsdSize           = "ecall.msd.size"
)

const (
	msdSizeSampleReservoir = 1028
	msdSizeSampleAlpha     = 0.015
)

type serviceMetrics struct {
	dialAttempts      metrics.Counter
	redialScheduled   metrics.Counter
	msdEncoded        metrics.Counter
	msdEncodeFailures metrics.Counter
	sessionsCompleted metrics.Counter
	redialPeriodEnded metrics.Counter
	msdSize           metrics.Histogram
}

func newServiceMetrics(registry metrics.Registry) *serviceMetrics {
	return &serviceMetrics{
		dialAttempts:      metrics.GetOrRegisterCounter(MetricDialAttempts, registry),
		redialScheduled:   metrics.GetOrRegisterCounter(MetricRedialScheduled, registry),
		msdEncoded:        metrics.GetOrRegisterCounter(MetricMsdEncoded, registry),
		msdEncodeFailures: metrics.GetOrRegisterCounter(MetricMsdEncodeFailures, registry),
		sessionsCompleted: metrics.GetOrRegisterCounter(MetricSessionsCompleted, registry),
		redialPeriodEnded: metrics.GetOrRegisterCounter(MetricRedialPeriodEnded, registry),
		msdSize: metrics.GetOrRegisterHistogram(MetricMsdSize, registry,
			metrics.NewExpDecaySample(msdSizeSampleReservoir, msdSizeSampleAlpha)),
	}
}
