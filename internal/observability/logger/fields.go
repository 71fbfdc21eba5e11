package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// ─── Sistema ───

// Component identifica el módulo que loguea.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op identifica la operación en curso.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer: handler, service, sender.
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// ─── HTTP ───

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// ─── Mail ───

// Kind es el tipo de email (password_reset, user_activation).
func Kind(v string) zap.Field { return zap.String("kind", v) }

// MessageID correlaciona las entradas de un mismo envío.
func MessageID(v string) zap.Field { return zap.String("message_id", v) }

// Template es el nombre del template usado.
func Template(v string) zap.Field { return zap.String("template", v) }

// Recipient loguea el destinatario enmascarado (nunca la dirección completa).
func Recipient(addr string) zap.Field { return zap.String("to", MaskEmail(addr)) }

// Host del servidor SMTP.
func Host(v string) zap.Field { return zap.String("host", v) }

// ─── Genéricos ───

func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }

// MaskEmail reduce "alice@example.com" a "a…@e….com".
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if s == "" {
			return ""
		}
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	dparts := strings.Split(dom, ".")
	if len(dparts) > 0 && len(dparts[0]) > 1 {
		dparts[0] = dparts[0][:1] + "…"
	}
	return user + "@" + strings.Join(dparts, ".")
}
