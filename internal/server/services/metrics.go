package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantvault_file_sync_operations_total",
		Help: "File sync operations by kind and outcome.",
	}, []string{"op", "outcome"})

	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantvault_webhook_deliveries_total",
		Help: "Webhook delivery outcomes after retries.",
	}, []string{"outcome"})
)

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
