package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "paynow",
	Name:      "transactions_total",
	Help:      "Lifecycle operations by result.",
}, []string{"operation", "result"})

var enrolmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "paynow",
	Name:      "enrolments_total",
	Help:      "Enrolments triggered by confirmed payments.",
})

func observe(operation string, err error) {
	transactionsTotal.WithLabelValues(operation, ErrorKind(err)).Inc()
}
