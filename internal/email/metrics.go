package email

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics cuenta envíos por kind/resultado y mide su latencia.
// Todos los métodos aceptan receptor nil.
type Metrics struct {
	sent     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registra las métricas en reg (DefaultRegisterer si es nil).
// Registrar dos veces reutiliza los collectors existentes.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hellomail_emails_total",
		Help: "Emails procesados por kind, resultado y diagnóstico",
	}, []string{"kind", "result", "diag"}) // result: sent|failed

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hellomail_send_duration_seconds",
		Help:    "Duración de compose + sesión SMTP",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	var err error
	if sent, err = registerCollector(reg, sent); err != nil {
		return nil, err
	}
	if duration, err = registerCollector(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{sent: sent, duration: duration}, nil
}

// registerCollector registra c; si ya estaba registrado devuelve el existente.
func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observe(kind Kind, err error, d time.Duration) {
	if m == nil {
		return
	}
	result, diag := "sent", "none"
	if err != nil {
		result, diag = "failed", classify(err)
	}
	m.sent.WithLabelValues(kind.String(), result, diag).Inc()
	m.duration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// classify reduce un error de Send a una etiqueta de baja cardinalidad.
func classify(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, ErrTemplateRender):
		return "template_render"
	default:
		return DiagnoseSMTP(err).Code
	}
}
