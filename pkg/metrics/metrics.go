package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts API requests by route template and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fredsavings_http_requests_total",
			Help: "API requests by route and status",
		},
		[]string{"route", "method", "code"},
	)

	// InstallmentsSubmitted counts submissions by late-fee tier.
	InstallmentsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fredsavings_installments_submitted_total",
			Help: "Instalments submitted by members",
		},
		[]string{"late_fee"},
	)

	InstallmentReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fredsavings_installment_reviews_total",
			Help: "Admin decisions on instalments",
		},
		[]string{"decision"},
	)

	// Distributions counts distribution attempts; status is applied or duplicate.
	Distributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fredsavings_distributions_total",
			Help: "Profit distribution apply attempts",
		},
		[]string{"status"},
	)

	DataQualityWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fredsavings_data_quality_warnings_total",
			Help: "Member matching warnings raised while building reports",
		},
		[]string{"code"},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fredsavings_emails_total",
			Help: "Notification emails by backend and outcome",
		},
		[]string{"backend", "status"},
	)
)
