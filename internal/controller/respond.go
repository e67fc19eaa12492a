// internal/controller/respond.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailing-service/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto an HTTP status. Unexpected errors are logged and
// their details are not sent to the client.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		status, msg = http.StatusBadRequest, verrs.Error()
	case errors.Is(err, appErrors.ErrValidation), errors.Is(err, appErrors.ErrInvalidWindow):
		status, msg = http.StatusBadRequest, err.Error()
	case appErrors.IsNotFound(err):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, appErrors.ErrDuplicatePhone):
		status, msg = http.StatusConflict, err.Error()
	default:
		log.Error("request failed", zap.Error(err))
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// ParseID reads the {id} URL parameter.
func ParseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.Wrapf(appErrors.ErrValidation, "invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrapf(appErrors.ErrValidation, "invalid body: %v", err)
	}
	return validate.Struct(dst)
}
