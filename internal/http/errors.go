package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellomail/internal/email"
)

var (
	ErrInvalidJSON         = &HTTPError{Code: "invalid_json", Message: "Invalid JSON format", Status: http.StatusBadRequest}
	ErrInvalidInput        = &HTTPError{Code: "invalid_input", Message: "Invalid input", Status: http.StatusBadRequest}
	ErrTemplateNotFound    = &HTTPError{Code: "template_not_found", Message: "Email template not found", Status: http.StatusInternalServerError}
	ErrTemplateRender      = &HTTPError{Code: "template_render", Message: "Email template could not be rendered", Status: http.StatusInternalServerError}
	ErrSendFailed          = &HTTPError{Code: "send_failed", Message: "Email could not be delivered", Status: http.StatusBadGateway}
	ErrRateLimited         = &HTTPError{Code: "rate_limited", Message: "Too many emails for this recipient", Status: http.StatusTooManyRequests}
	ErrServiceUnavailable  = &HTTPError{Code: "service_unavailable", Message: "Service unavailable", Status: http.StatusServiceUnavailable}
	ErrInternalServerError = &HTTPError{Code: "internal_error", Message: "Internal server error", Status: http.StatusInternalServerError}
)

// HTTPError es el cuerpo JSON estándar de error.
type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Status  int    `json:"-"`
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// WithDetail devuelve una copia con detalle.
func (e *HTTPError) WithDetail(detail string) *HTTPError {
	return &HTTPError{Code: e.Code, Message: e.Message, Detail: detail, Status: e.Status}
}

// FromEmailError traduce los errores del servicio de email a HTTPError.
// Para fallas SMTP el detalle es el código de diagnóstico, no el error crudo.
func FromEmailError(err error) *HTTPError {
	var he *HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case errors.Is(err, email.ErrInvalidInput):
		return ErrInvalidInput.WithDetail(err.Error())
	case errors.Is(err, email.ErrTemplateNotFound):
		return ErrTemplateNotFound
	case errors.Is(err, email.ErrTemplateRender):
		return ErrTemplateRender
	case errors.Is(err, email.ErrSendFailed):
		return ErrSendFailed.WithDetail(email.DiagnoseSMTP(err).Code)
	default:
		return ErrInternalServerError
	}
}

// WriteError escribe err como JSON. Errores desconocidos salen como 500.
func WriteError(w http.ResponseWriter, err error) {
	httpErr := FromEmailError(err)
	if httpErr == nil {
		httpErr = ErrInternalServerError
	}
	WriteJSON(w, httpErr.Status, httpErr)
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica el body de forma tolerante (campos extra no fallan).
// Valida Content-Type y limita el body a 64KB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, ErrInvalidJSON.WithDetail("Content-Type must be application/json"))
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		WriteError(w, ErrInvalidJSON)
		return false
	}
	return true
}
