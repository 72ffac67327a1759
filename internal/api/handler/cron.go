package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/internal/scheduler"
	"github.com/vfg2006/audience-delivery-api/pkg/apiErrors"
)

const (
	CronJobTypeDeliverySync      = "delivery-sync"
	CronJobTypeDestinationHealth = "destination-health"
	CronJobTypeAll               = "all"
)

// CronJobServices holds the schedulers exposed for manual runs
type CronJobServices struct {
	DeliverySyncService      *scheduler.DeliverySyncService
	DestinationHealthService *scheduler.DestinationHealthService
}

// RunCronJob triggers one scheduler pass outside its cron cadence
func RunCronJob(services CronJobServices) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		cronType := httprouter.ParamsFromContext(r.Context()).ByName("type")
		if cronType == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "cron job type is required", nil)
			return
		}

		switch cronType {
		case CronJobTypeDeliverySync:
			if services.DeliverySyncService == nil {
				apiErrors.WriteError(w, apiErrors.ErrInternalServer, "delivery sync service unavailable", nil)
				return
			}
			services.DeliverySyncService.TriggerManualSync()

		case CronJobTypeDestinationHealth:
			if services.DestinationHealthService == nil {
				apiErrors.WriteError(w, apiErrors.ErrInternalServer, "destination health service unavailable", nil)
				return
			}
			services.DestinationHealthService.TriggerManualCheck()

		case CronJobTypeAll:
			if services.DeliverySyncService != nil {
				services.DeliverySyncService.TriggerManualSync()
			}
			if services.DestinationHealthService != nil {
				services.DestinationHealthService.TriggerManualCheck()
			}

		default:
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid cron job type, accepted values: delivery-sync, destination-health, all", nil)
			return
		}

		logrus.WithField("type", cronType).Info("cron job triggered manually")

		response := map[string]any{
			"message": "cron job started",
			"type":    cronType,
		}
		json.NewEncoder(w).Encode(response)
	}
}

// GetCronStatus reports the schedulers' current state
func GetCronStatus(services CronJobServices) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status := map[string]any{}
		if services.DeliverySyncService != nil {
			status["delivery_sync"] = services.DeliverySyncService.GetStatus()
		}
		if services.DestinationHealthService != nil {
			status["destination_health"] = services.DestinationHealthService.GetStatus()
		}

		if err := json.NewEncoder(w).Encode(status); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	}
}
