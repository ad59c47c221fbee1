package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so errors match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("field '%v' failed '%v=%v'", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("field '%v' failed '%v'", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func decodeAndValidate(body io.Reader, dest interface{}) error {
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		return fmt.Errorf("error parsing request body: %w", err)
	}

	if reflect.Indirect(reflect.ValueOf(dest)).Kind() == reflect.Struct {
		if err := validate.Struct(dest); err != nil {
			return fmt.Errorf("invalid request body: %v", validationMessage(err))
		}
	}
	return nil
}

// ParseRequestBody decodes and validates the json body. On failure the error
// response has already been written.
func ParseRequestBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := decodeAndValidate(r.Body, dest); err != nil {
		slog.Info("rejected request body", "url", r.URL.Path, "error", err)
		WriteError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// IsMultipart reports whether the request carries a multipart/form-data body.
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// ParseFormJson decodes and validates the json document sent as the value of
// a multipart form field, for requests that mix a body with file uploads.
func ParseFormJson(w http.ResponseWriter, form *multipart.Form, field string, dest interface{}) bool {
	values := form.Value[field]
	if len(values) != 1 {
		WriteError(w, fmt.Sprintf("form field '%v' must be sent exactly once", field), http.StatusBadRequest)
		return false
	}
	if err := decodeAndValidate(strings.NewReader(values[0]), dest); err != nil {
		WriteError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	writeJson(w, http.StatusOK, data)
}

func WriteCreated(w http.ResponseWriter, location string, data interface{}) {
	w.Header().Set("Location", location)
	writeJson(w, http.StatusCreated, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteSuccess(w http.ResponseWriter) {
	WriteJsonResponse(w, struct{}{})
}

func writeJson(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInsufficientStorage:
		return "insufficient_storage"
	default:
		return "internal_error"
	}
}

// WriteError is the json counterpart of http.Error.
func WriteError(w http.ResponseWriter, message string, status int) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("X-Content-Type-Options", "nosniff")
	writeJson(w, status, ErrorResponse{Error: errorCode(status), Message: message})
}

func URLParam(r *http.Request, key string) (string, error) {
	param := chi.URLParam(r, key)
	if len(param) == 0 {
		return "", fmt.Errorf("missing {%v} url parameter", key)
	}
	return param, nil
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return uuid.Nil, fmt.Errorf("missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' provided: %w", param, err)
	}

	return id, nil
}
