// Package metrics exposes Prometheus instrumentation for the recording pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordingActive is 1 while an encoder process is live, 0 otherwise.
	RecordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aircast_recording_active",
		Help: "Whether a recording session is currently live",
	})

	// RecordingStartTotal tracks the outcome of start attempts.
	RecordingStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aircast_recording_start_total",
		Help: "Total number of recording start attempts by result",
	}, []string{"result"})

	// EncoderUnexpectedExitTotal counts encoder processes that died while a
	// session was nominally live.
	EncoderUnexpectedExitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aircast_encoder_unexpected_exit_total",
		Help: "Total number of unexpected encoder exits during a live session",
	})

	// UploadsTotal tracks completed upload tasks by result.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aircast_uploads_total",
		Help: "Total number of upload tasks by result",
	}, []string{"result"})

	// UploadRetriesTotal counts individual upload attempts that failed and
	// were retried.
	UploadRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aircast_upload_retries_total",
		Help: "Total number of retried upload attempts",
	})

	// UploadQueueDepth reports the number of tasks waiting in the queue.
	UploadQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aircast_upload_queue_depth",
		Help: "Number of upload tasks currently queued",
	})
)

// IncRecordingStart records a start attempt outcome.
func IncRecordingStart(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	RecordingStartTotal.WithLabelValues(result).Inc()
}

// IncUpload records a completed upload task outcome.
func IncUpload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	UploadsTotal.WithLabelValues(result).Inc()
}
