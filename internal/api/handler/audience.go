package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/audiencing"
	"github.com/vfg2006/audience-delivery-api/pkg/apiErrors"
)

func CreateAudience(service audiencing.AudienceService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req domain.CreateAudienceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}

		audience, err := service.Create(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error creating audience:", err)
			writeAudienceError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(audience); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func GetAudience(service audiencing.AudienceService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "audience id is required", nil)
			return
		}

		audience, err := service.Get(r.Context(), id)
		if err != nil {
			logrus.Error("error loading audience:", err)
			writeAudienceError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(audience); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func ListAudiences(service audiencing.AudienceService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pageSize, pageNumber := paginationFrom(r)

		audiences, total, err := service.List(r.Context(), pageSize, pageNumber)
		if err != nil {
			logrus.Error("error listing audiences:", err)
			writeAudienceError(w, err)
			return
		}

		response := map[string]any{
			"total":     total,
			"audiences": audiences,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func UpdateAudience(service audiencing.AudienceService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "audience id is required", nil)
			return
		}

		var req domain.UpdateAudienceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}
		req.ID = id

		audience, err := service.Update(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error updating audience:", err)
			writeAudienceError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(audience); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func DeleteAudience(service audiencing.AudienceService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "audience id is required", nil)
			return
		}

		hard := r.URL.Query().Get("hard") == "true"

		if err := service.Delete(r.Context(), id, actorFrom(r), hard); err != nil {
			logrus.Error("error deleting audience:", err)
			writeAudienceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func GetAudienceLookalikeStatus(service audiencing.AudienceService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "audience id is required", nil)
			return
		}

		status, err := service.LookalikeableStatus(r.Context(), id)
		if err != nil {
			logrus.Error("error evaluating lookalike status:", err)
			writeAudienceError(w, err)
			return
		}

		response := map[string]any{
			"audience_id":   id,
			"lookalikeable": status,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func writeAudienceError(w http.ResponseWriter, err error) {
	var fieldErr *repository.FieldError
	if errors.As(err, &fieldErr) {
		apiErrors.WriteError(w, apiErrors.ErrInvalidField, fieldErr.Error(), map[string]any{
			"fields": fieldErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, audiencing.ErrUnknownAudience):
		apiErrors.WriteError(w, apiErrors.ErrResourceNotFound, err.Error(), nil)

	case errors.Is(err, audiencing.ErrUnknownSourceAudience):
		apiErrors.WriteError(w, apiErrors.ErrResourceNotFound, err.Error(), nil)

	case errors.Is(err, audiencing.ErrDuplicateAudienceName), errors.Is(err, repository.ErrDuplicateDocument):
		apiErrors.WriteError(w, apiErrors.ErrResourceConflict, err.Error(), nil)

	case errors.Is(err, audiencing.ErrSourceNotLookalikeable), errors.Is(err, audiencing.ErrInvalidLookalike):
		apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, err.Error(), nil)

	case errors.Is(err, repository.ErrDatabaseOperation):
		apiErrors.WriteError(w, apiErrors.ErrDatabaseOperation, "error accessing the document store", nil)

	default:
		apiErrors.WriteError(w, apiErrors.ErrInternalServer, "internal error handling audience", nil)
	}
}
