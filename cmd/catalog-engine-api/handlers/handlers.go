// Package handlers provides HTTP handlers for the Catalog Engine API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// decodeBody reads a JSON body into dst and validates it. The returned
// error is safe to show to the client.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, detail string) {
	writeJSON(w, status, engine.ErrorResponse{Error: code, Message: message, Detail: detail})
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "bad_request", "invalid request", err.Error())
}

// writeServiceError maps a service error onto a status code and logs it.
func writeServiceError(ctx context.Context, w http.ResponseWriter, logger *observability.Logger, message string, err error) {
	status, code := statusFor(err)
	event := logger.WithContext(ctx).Error()
	if status < http.StatusInternalServerError {
		event = logger.WithContext(ctx).Warn()
	}
	event.Err(err).Int("status", status).Msg(message)
	writeError(w, status, code, message, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	}
	if llmErr, ok := llm.AsError(err); ok {
		switch llmErr.Type {
		case llm.ErrorTypeUnavailable, llm.ErrorTypeRateLimit:
			return http.StatusServiceUnavailable, "unavailable"
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
