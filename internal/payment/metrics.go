package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_requests_created_total",
		Help: "Payment requests accepted for review",
	})

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_request_resolutions_total",
			Help: "Payment request resolutions by decision and outcome",
		},
		[]string{"decision", "outcome"},
	)

	platformFeesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_platform_fees_minor_units_total",
		Help: "Platform fees recorded, in minor currency units",
	})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
