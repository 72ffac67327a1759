package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/destinating"
	"github.com/vfg2006/audience-delivery-api/pkg/apiErrors"
)

func ListDestinations(service destinating.DestinationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		category := domain.DestinationCategory(r.URL.Query().Get("category"))
		addedOnly := r.URL.Query().Get("added") == "true"

		destinations, err := service.List(r.Context(), category, addedOnly)
		if err != nil {
			logrus.Error("error listing destinations:", err)
			writeDestinationError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(destinations); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func GetDestination(service destinating.DestinationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "destination id is required", nil)
			return
		}

		dest, err := service.Get(r.Context(), id)
		if err != nil {
			logrus.Error("error loading destination:", err)
			writeDestinationError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(dest); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func UpdateDestination(service destinating.DestinationService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		if id == "" {
			apiErrors.WriteError(w, apiErrors.ErrMissingRequiredData, "destination id is required", nil)
			return
		}

		var req domain.UpdateDestinationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInvalidRequest, "invalid request body: "+err.Error(), nil)
			return
		}
		req.ID = id

		dest, err := service.Update(r.Context(), &req, actorFrom(r))
		if err != nil {
			logrus.Error("error updating destination:", err)
			writeDestinationError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(dest); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}

func writeDestinationError(w http.ResponseWriter, err error) {
	var fieldErr *repository.FieldError
	if errors.As(err, &fieldErr) {
		apiErrors.WriteError(w, apiErrors.ErrInvalidField, fieldErr.Error(), map[string]any{
			"fields": fieldErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, destinating.ErrUnknownDestination):
		apiErrors.WriteError(w, apiErrors.ErrResourceNotFound, err.Error(), nil)

	case errors.Is(err, repository.ErrDatabaseOperation):
		apiErrors.WriteError(w, apiErrors.ErrDatabaseOperation, "error accessing the document store", nil)

	default:
		apiErrors.WriteError(w, apiErrors.ErrInternalServer, "internal error handling destination", nil)
	}
}
