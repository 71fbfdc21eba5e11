package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellomail/internal/email"
	"github.com/dropDatabas3/hellomail/internal/observability/logger"
	"github.com/dropDatabas3/hellomail/internal/rate"
)

// Mailer es lo que los handlers necesitan del servicio de email.
// *email.Service lo implementa.
type Mailer interface {
	Compose(ctx context.Context, req email.SendRequest) (*email.Message, error)
	Send(ctx context.Context, req email.SendRequest) (*email.Result, error)
}

// MailRequest es el body de /v1/mail/send y /v1/mail/preview.
type MailRequest struct {
	Kind       string           `json:"kind"` // "password_reset" | "user_activation"
	To         email.Mailbox    `json:"to"`
	Activation email.Activation `json:"activation"`
}

func (m MailRequest) toSendRequest(ctx context.Context) email.SendRequest {
	kind, ok := email.ParseKind(m.Kind)
	if !ok {
		logger.From(ctx).Warn("unknown email kind, using activation", logger.Kind(m.Kind))
	}
	return email.SendRequest{Kind: kind, To: m.To, Activation: m.Activation}
}

type SendResponse struct {
	MessageID string `json:"message_id"`
	Kind      string `json:"kind"`
}

type PreviewResponse struct {
	Kind    string `json:"kind"`
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// MailHandler expone el servicio de email por HTTP.
type MailHandler struct {
	mailer    Mailer
	templates email.TemplateSource
	limiter   rate.Limiter // opcional, por destinatario
}

func NewMailHandler(mailer Mailer, templates email.TemplateSource) *MailHandler {
	return &MailHandler{mailer: mailer, templates: templates}
}

// WithLimiter limita los envíos por destinatario.
func (h *MailHandler) WithLimiter(l rate.Limiter) *MailHandler {
	h.limiter = l
	return h
}

// allow aplica el limiter. Si el backend falla se deja pasar el envío.
func (h *MailHandler) allow(w http.ResponseWriter, r *http.Request, to string) bool {
	to = strings.ToLower(strings.TrimSpace(to))
	if h.limiter == nil || to == "" {
		return true
	}
	res, err := h.limiter.Allow(r.Context(), "to:"+to)
	if err != nil {
		logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
		return true
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	if !res.Allowed {
		if res.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		logger.From(r.Context()).Warn("send rate limited", logger.Recipient(to), logger.Any("hits", res.CurrentHits))
		WriteError(w, ErrRateLimited)
		return false
	}
	return true
}

func (h *MailHandler) Register(r chi.Router) {
	r.Route("/v1/mail", func(r chi.Router) {
		r.Post("/send", h.Send)
		r.Post("/preview", h.Preview)
	})
	r.Get("/readyz", h.Ready)
}

// Send: POST /v1/mail/send. 202 con message_id si el servidor SMTP aceptó el mensaje.
// Un request inválido no consume cuota del destinatario.
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var in MailRequest
	if !ReadJSON(w, r, &in) {
		return
	}
	req := in.toSendRequest(r.Context())
	if err := req.Validate(); err != nil {
		WriteError(w, err)
		return
	}
	if !h.allow(w, r, req.To.Address) {
		return
	}
	res, err := h.mailer.Send(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, SendResponse{MessageID: res.MessageID, Kind: res.Kind.String()})
}

// Preview: POST /v1/mail/preview. Arma el mensaje sin enviarlo.
func (h *MailHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var in MailRequest
	if !ReadJSON(w, r, &in) {
		return
	}
	msg, err := h.mailer.Compose(r.Context(), in.toSendRequest(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, PreviewResponse{
		Kind:    msg.Kind.String(),
		From:    msg.From.String(),
		To:      msg.To.String(),
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
}

// Ready: GET /readyz. Listo si los dos templates se pueden cargar.
func (h *MailHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, name := range []string{email.TemplateActivation, email.TemplatePasswordReset} {
		if _, err := h.templates.Load(ctx, name); err != nil {
			logger.From(ctx).Warn("readyz: template unavailable", logger.Template(name), logger.Err(err))
			WriteError(w, ErrServiceUnavailable.WithDetail("template "+name+" unavailable"))
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
