package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thesis_submissions_total",
		Help: "Submission attempts by outcome",
	}, []string{"outcome"})

	transitionMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thesis_status_transitions_total",
		Help: "Accepted thesis status changes by target status",
	}, []string{"status"})

	exportMetric         = promauto.NewCounter(prometheus.CounterOpts{Name: "thesis_exports_total", Help: "Workbook exports"})
	exportDurationMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "thesis_export_seconds", Help: "Workbook export latency"})
)
