package transport

import (
	"errors"
	"net/http"
	"strconv"

	"shopline/internal/middleware"
	"shopline/internal/repository"
	"shopline/internal/service"

	"go.uber.org/zap"
)

// respondServiceError maps the service error taxonomy onto HTTP statuses:
// validation and stock errors to 400, bad credentials to 401, missing
// entities to 404, duplicate accounts to 409, everything else to 500.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		middleware.RespondWithError(w, http.StatusBadRequest, validationErr.Message)
		return
	}

	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		middleware.RespondWithError(w, http.StatusBadRequest, stockErr.Error())
		return
	}

	if errors.Is(err, service.ErrInvalidCredentials) {
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	var notFoundErr *service.NotFoundError
	if errors.As(err, &notFoundErr) {
		middleware.RespondWithError(w, http.StatusNotFound, notFoundErr.Error())
		return
	}

	if errors.Is(err, repository.ErrUserAlreadyExists) {
		middleware.RespondWithError(w, http.StatusConflict, "user with this email already exists")
		return
	}

	logger.Error("Unhandled service error", zap.Error(err))
	middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
}

// respondDecodeError distinguishes validator failures from malformed JSON.
func respondDecodeError(w http.ResponseWriter, err error) {
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
