package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "polizei_event_duration_sec",
	Help: "Total duration of event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "polizei_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "polizei_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var eventMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "polizei_event_matches",
	Help: "Number of events matching a blacklist entry",
}, []string{"type", "category"})

var enforcementStepCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "polizei_enforcement_steps",
	Help: "Number of enforcement steps performed",
}, []string{"step", "outcome"})

var mediaDownloadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "polizei_media_downloads",
	Help: "Number of media downloads attempted, by outcome",
}, []string{"outcome"})

var mediaDownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "polizei_media_download_duration_sec",
	Help: "Duration of media download attempts",
})

var oversizedFileCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "polizei_oversized_files_skipped",
	Help: "Number of files skipped for exceeding the size ceiling",
})
