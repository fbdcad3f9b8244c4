package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
)

type envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: msg, Data: data})
}

func fail(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, envelope{Message: msg, Error: &errorBody{Kind: kind}})
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidInput, apperr.KindSignatureInvalid:
		return http.StatusBadRequest
	case apperr.KindEmptyCart, apperr.KindProductUnavailable, apperr.KindInsufficientStock,
		apperr.KindInvalidStatus, apperr.KindAlreadyPaid, apperr.KindNoPayableAmount:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := StatusOf(kind)
	if code >= 500 {
		logging.FromContext(r.Context()).Error("request_failed", zap.Error(err))
	}
	fail(w, code, string(kind), apperr.Message(err))
}

const maxBody = 1 << 20

// decode reads a JSON body. Unknown fields are rejected.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("request body is required")
		}
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid json")
	}
	return nil
}
