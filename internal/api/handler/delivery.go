package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/delivering"
	"github.com/vfg2006/audience-delivery-api/pkg/apiErrors"
)

// RecordDelivery creates a Pending delivery job for an audience and
// destination, optionally inside an engagement
func RecordDelivery(service delivering.DeliveryTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req domain.RecordDeliveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}
		if req.AudienceID == "" || req.DestinationID == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "audience_id and destination_id are required", nil)
			return
		}

		job, err := service.RecordDelivery(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error recording delivery:", err)
			writeDeliveryError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(job); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

// DispatchDelivery pushes a Pending job to its destination platform
func DispatchDelivery(service delivering.DeliveryTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "job id is required", nil)
			return
		}

		job, err := service.Dispatch(r.Context(), id, actorFrom(r))
		if err != nil {
			logrus.Error("error dispatching delivery:", err)
			writeDeliveryError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(job); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

// CompleteDelivery records the terminal result the destination platform
// reported for an InProgress job
func CompleteDelivery(service delivering.DeliveryTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "job id is required", nil)
			return
		}

		var req domain.CompleteDeliveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}
		req.JobID = id

		job, err := service.Complete(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error completing delivery:", err)
			writeDeliveryError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(job); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

// BackfillDeliveryMetrics attaches platform performance metrics to a
// finished job
func BackfillDeliveryMetrics(service delivering.DeliveryTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "job id is required", nil)
			return
		}

		var metrics domain.PerformanceMetrics
		if err := json.NewDecoder(r.Body).Decode(&metrics); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}

		job, err := service.BackfillMetrics(r.Context(), id, &metrics, actorFrom(r))
		if err != nil {
			logrus.Error("error backfilling delivery metrics:", err)
			writeDeliveryError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(job); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func GetDeliveryJob(service delivering.DeliveryTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "job id is required", nil)
			return
		}

		job, err := service.GetJob(r.Context(), id)
		if err != nil {
			logrus.Error("error loading delivery job:", err)
			writeDeliveryError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(job); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func ListDeliveryJobs(service delivering.DeliveryTracker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pageSize, pageNumber := paginationFrom(r)
		audienceID := r.URL.Query().Get("audience_id")

		jobs, total, err := service.ListJobs(r.Context(), audienceID, pageSize, pageNumber)
		if err != nil {
			logrus.Error("error listing delivery jobs:", err)
			writeDeliveryError(w, err)
			return
		}

		response := map[string]any{
			"total": total,
			"jobs":  jobs,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func writeDeliveryError(w http.ResponseWriter, err error) {
	var fieldErr *repository.FieldError
	if errors.As(err, &fieldErr) {
		apiErrors.WriteError(w, apiErrors.ErrInvalidField, fieldErr.Error(), map[string]any{
			"fields": fieldErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, delivering.ErrUnknownAudience),
		errors.Is(err, delivering.ErrUnknownDestination),
		errors.Is(err, delivering.ErrUnknownEngagement),
		errors.Is(err, delivering.ErrUnknownJob):
		apiErrors.WriteError(w, apiErrors.ErrResourceNotFound, err.Error(), nil)

	case errors.Is(err, delivering.ErrInvalidTransition),
		errors.Is(err, delivering.ErrJobNotTerminal):
		apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, err.Error(), nil)

	case errors.Is(err, repository.ErrDatabaseOperation):
		apiErrors.WriteError(w, apiErrors.ErrDatabaseOperation, "error accessing the document store", nil)

	default:
		apiErrors.WriteError(w, apiErrors.ErrInternalServer, "internal error handling delivery", nil)
	}
}
