package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/hellomail/internal/observability/logger"
)

// ServiceConfig agrupa las dependencias del Service.
type ServiceConfig struct {
	Sender    Sender         // requerido
	Templates TemplateSource // requerido
	From      Mailbox        // remitente; Address requerido

	Sealer      Sealer // opcional: cifra el código del link
	FrontendURL string // base del link cuando Activation.URL viene vacío

	Metrics *Metrics    // opcional
	Logger  *zap.Logger // opcional, default logger.From(ctx)
}

// SendRequest es un envío: kind, destinatario y payload viajan juntos.
type SendRequest struct {
	Kind       Kind       `json:"kind"`
	To         Mailbox    `json:"to"`
	Activation Activation `json:"activation"`
}

// Validate chequea destinatario y código. Un kind desconocido no es error:
// Select cae en UserActivation.
func (r SendRequest) Validate() error {
	if strings.TrimSpace(r.To.Address) == "" {
		return fmt.Errorf("%w: recipient address is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(r.To.Address); err != nil {
		return fmt.Errorf("%w: recipient address: %v", ErrInvalidInput, err)
	}
	if r.Activation.Code == "" {
		return fmt.Errorf("%w: activation code is required", ErrInvalidInput)
	}
	return nil
}

// Result describe un envío terminado (con o sin error).
type Result struct {
	MessageID string
	Kind      Kind
	Duration  time.Duration
	Err       error
}

// Service compone y entrega emails. Es seguro para uso concurrente.
type Service struct {
	sender      Sender
	templates   TemplateSource
	sealer      Sealer
	from        Mailbox
	frontendURL string
	metrics     *Metrics
	log         *zap.Logger

	newID func() string
}

// NewService valida la configuración y construye el Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidInput)
	}
	if cfg.Templates == nil {
		return nil, fmt.Errorf("%w: template source is required", ErrInvalidInput)
	}
	if strings.TrimSpace(cfg.From.Address) == "" {
		return nil, fmt.Errorf("%w: from address is required", ErrInvalidInput)
	}
	return &Service{
		sender:      cfg.Sender,
		templates:   cfg.Templates,
		sealer:      cfg.Sealer,
		from:        cfg.From,
		frontendURL: cfg.FrontendURL,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		newID:       uuid.NewString,
	}, nil
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.From(ctx)
}

// Compose arma el Message sin enviarlo: selecciona subject/template por kind,
// carga el template y reemplaza los tokens.
func (s *Service) Compose(ctx context.Context, req SendRequest) (*Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sel := Select(req.Kind)

	body, err := s.templates.Load(ctx, sel.Template)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", sel.Template, err)
	}

	a := req.Activation
	if strings.TrimSpace(a.URL) == "" {
		a.URL = s.frontendURL
	}
	html, err := Render(body, sel, a, s.sealer)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:      s.newID(),
		Kind:    req.Kind.Resolve(),
		From:    s.from,
		To:      req.To,
		Subject: sel.Subject,
		HTML:    html,
	}, nil
}

// Send compone y entrega. El Result nunca es nil; si hubo error también
// queda en Result.Err.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Result, error) {
	start := time.Now()
	log := s.logger(ctx).With(
		logger.Layer("service"),
		logger.Op("Send"),
		logger.Kind(req.Kind.Resolve().String()),
		logger.Recipient(req.To.Address),
	)

	res := &Result{Kind: req.Kind.Resolve()}
	finish := func(err error) (*Result, error) {
		res.Duration = time.Since(start)
		res.Err = err
		s.metrics.observe(res.Kind, err, res.Duration)
		return res, err
	}

	msg, err := s.Compose(ctx, req)
	if err != nil {
		log.Error("failed to compose email", logger.Err(err))
		return finish(err)
	}
	res.MessageID = msg.ID
	log = log.With(logger.MessageID(msg.ID))

	if err := s.sender.Send(ctx, msg); err != nil {
		diag := DiagnoseSMTP(err)
		log.Error("failed to send email",
			logger.Err(err),
			logger.String("diag_code", diag.Code),
			logger.Bool("temporary", diag.Temporary),
		)
		return finish(fmt.Errorf("%w: %w", ErrSendFailed, err))
	}

	log.Info("email sent", logger.Duration(time.Since(start)))
	return finish(nil)
}

// SendAsync ejecuta Send en otra goroutine. El canal recibe exactamente un
// Result y se cierra.
func (s *Service) SendAsync(ctx context.Context, req SendRequest) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		res, _ := s.Send(ctx, req)
		ch <- *res
	}()
	return ch
}
