package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/engaging"
	"github.com/vfg2006/audience-delivery-api/pkg/apiErrors"
)

func CreateEngagement(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req domain.CreateEngagementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}

		engagement, err := service.Create(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error creating engagement:", err)
			writeEngagementError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func GetEngagement(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement id is required", nil)
			return
		}

		engagement, err := service.Get(r.Context(), id)
		if err != nil {
			logrus.Error("error loading engagement:", err)
			writeEngagementError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func ListEngagements(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pageSize, pageNumber := paginationFrom(r)

		engagements, total, err := service.List(r.Context(), pageSize, pageNumber)
		if err != nil {
			logrus.Error("error listing engagements:", err)
			writeEngagementError(w, err)
			return
		}

		response := map[string]any{
			"total":       total,
			"engagements": engagements,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func UpdateEngagement(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement id is required", nil)
			return
		}

		var req domain.UpdateEngagementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}
		req.ID = id

		engagement, err := service.Update(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error updating engagement:", err)
			writeEngagementError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func DeleteEngagement(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement id is required", nil)
			return
		}

		hard := r.URL.Query().Get("hard") == "true"

		if err := service.Delete(r.Context(), id, actorFrom(r), hard); err != nil {
			logrus.Error("error deleting engagement:", err)
			writeEngagementError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func AttachAudience(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement id is required", nil)
			return
		}

		var req domain.AttachAudienceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}
		req.EngagementID = id

		if req.AudienceID == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "audience_id is required", nil)
			return
		}

		engagement, err := service.AttachAudience(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error attaching audience:", err)
			writeEngagementError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func DetachAudience(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		params := httprouter.ParamsFromContext(r.Context())
		engagementID := params.ByName("id")
		audienceID := params.ByName("audience_id")
		if engagementID == "" || audienceID == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement and audience ids are required", nil)
			return
		}

		engagement, err := service.DetachAudience(r.Context(), engagementID, audienceID, actorFrom(r))
		if err != nil {
			logrus.Error("error detaching audience:", err)
			writeEngagementError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

// setScheduleRequest carries either a structured schedule (audience
// level) or a raw cron expression (destination level). Null/empty
// clears the schedule.
type setScheduleRequest struct {
	Schedule       *domain.Schedule `json:"delivery_schedule,omitempty"`
	CronExpression string           `json:"cron_expression,omitempty"`
}

func SetAudienceSchedule(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		params := httprouter.ParamsFromContext(r.Context())
		engagementID := params.ByName("id")
		audienceID := params.ByName("audience_id")
		if engagementID == "" || audienceID == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement and audience ids are required", nil)
			return
		}

		var req setScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}

		engagement, err := service.SetAudienceSchedule(r.Context(), engagementID, audienceID, req.Schedule, actorFrom(r))
		if err != nil {
			logrus.Error("error setting audience schedule:", err)
			writeEngagementError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func SetDestinationSchedule(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		params := httprouter.ParamsFromContext(r.Context())
		engagementID := params.ByName("id")
		audienceID := params.ByName("audience_id")
		destinationID := params.ByName("destination_id")
		if engagementID == "" || audienceID == "" || destinationID == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement, audience and destination ids are required", nil)
			return
		}

		var req setScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}

		engagement, err := service.SetDestinationSchedule(r.Context(), engagementID, audienceID, destinationID, req.CronExpression, actorFrom(r))
		if err != nil {
			logrus.Error("error setting destination schedule:", err)
			writeEngagementError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

type setReplaceAudienceRequest struct {
	ReplaceAudience bool `json:"replace_audience"`
}

func SetReplaceAudienceFlag(service engaging.EngagementService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		params := httprouter.ParamsFromContext(r.Context())
		engagementID := params.ByName("id")
		audienceID := params.ByName("audience_id")
		destinationID := params.ByName("destination_id")
		if engagementID == "" || audienceID == "" || destinationID == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "engagement, audience and destination ids are required", nil)
			return
		}

		var req setReplaceAudienceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}

		engagement, err := service.SetReplaceAudienceFlag(r.Context(), engagementID, audienceID, destinationID, req.ReplaceAudience, actorFrom(r))
		if err != nil {
			logrus.Error("error setting replace-audience flag:", err)
			writeEngagementError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(engagement); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func writeEngagementError(w http.ResponseWriter, err error) {
	var fieldErr *repository.FieldError
	if errors.As(err, &fieldErr) {
		apiErrors.WriteError(w, apiErrors.ErrInvalidField, fieldErr.Error(), map[string]any{
			"fields": fieldErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, engaging.ErrUnknownEngagement),
		errors.Is(err, engaging.ErrUnknownAudience),
		errors.Is(err, engaging.ErrUnknownDestination):
		apiErrors.WriteError(w, apiErrors.ErrResourceNotFound, err.Error(), nil)

	case errors.Is(err, engaging.ErrDuplicateAudience),
		errors.Is(err, engaging.ErrDuplicateEngagementName),
		errors.Is(err, repository.ErrDuplicateDocument):
		apiErrors.WriteError(w, apiErrors.ErrResourceConflict, err.Error(), nil)

	case errors.Is(err, engaging.ErrAudienceNotInEngagement),
		errors.Is(err, engaging.ErrDestinationNotInEngagement),
		errors.Is(err, domain.ErrInvalidSchedule):
		apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, err.Error(), nil)

	case errors.Is(err, repository.ErrDatabaseOperation):
		apiErrors.WriteError(w, apiErrors.ErrDatabaseOperation, "error accessing the document store", nil)

	default:
		apiErrors.WriteError(w, apiErrors.ErrInternalServer, "internal error handling engagement", nil)
	}
}
