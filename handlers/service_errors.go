package handlers

import (
	"errors"
	"net/http"

	"github.com/maingoo/auth-service/services"
	"github.com/maingoo/auth-service/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Errors outside the domain taxonomy are logged and reported as internal.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		logger.Error("internal server error", zap.Error(err))
		domainErr = services.ErrInternal
	}

	if domainErr.Type == services.ErrorTypeInternal {
		if writeErr := utils.WriteInternalServerError(w, domainErr.Message); writeErr != nil {
			logger.Error("failed to write internal error response", zap.Error(writeErr))
		}
		return
	}

	if writeErr := utils.WriteError(w, domainErr.Status(), string(domainErr.Type), domainErr.Message, domainErr.Details); writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
