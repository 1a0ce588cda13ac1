package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/soaringjerry/hitlrate/internal/middleware"
	"github.com/soaringjerry/hitlrate/internal/services"
)

type errorBody struct {
	Code    services.ErrorCode       `json:"code"`
	Message string                   `json:"message"`
	Items   []services.BulkItemError `json:"items,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps service errors onto HTTP statuses. Anything else is logged
// and reported as a generic 500.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	body := errorBody{}
	var bulk *services.BulkError
	switch se, ok := services.AsServiceError(err); {
	case errors.As(err, &bulk):
		body.Code, body.Message, body.Items = bulk.Code, bulk.Message, bulk.Items
	case ok:
		body.Code, body.Message = se.Code, se.Message
	default:
		rt.log.Error("request failed", zap.String("op", op), zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]errorBody{"error": {Code: "internal", Message: "internal server error"}})
		return
	}
	writeJSON(w, statusFor(body.Code), map[string]errorBody{"error": body})
}

func (rt *Router) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Code: services.ErrorInvalid, Message: msg}})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return services.NewInvalidError("invalid JSON body: " + err.Error())
	}
	return nil
}

// principal is only called behind RequireAuth.
func principal(r *http.Request) services.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}
