package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
	"github.com/vfg2006/audience-delivery-api/pkg/apiErrors"
)

func ListNotifications(service notifying.Notifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pageSize, pageNumber := paginationFrom(r)

		notifications, total, err := service.List(r.Context(), pageSize, pageNumber)
		if err != nil {
			logrus.Error("error listing notifications:", err)
			if errors.Is(err, repository.ErrDatabaseOperation) {
				apiErrors.WriteError(w, apiErrors.ErrDatabaseOperation, "error accessing the document store", nil)
			} else {
				apiErrors.WriteError(w, apiErrors.ErrInternalServer, "internal error listing notifications", nil)
			}
			return
		}

		response := map[string]any{
			"total":         total,
			"notifications": notifications,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			apiErrors.WriteError(w, apiErrors.ErrInternalServer, "error encoding response", nil)
		}
	})
}
