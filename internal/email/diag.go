package email

import (
	"context"
	"errors"
	"net"
	"strings"
)

// SMTPDiag clasifica un error de envío para logs y métricas.
type SMTPDiag struct {
	Code      string // auth|tls|dial|timeout|canceled|rate_limited|invalid_recipient|rejected|network|unknown
	Temporary bool   // si tendría sentido reintentar
}

// DiagnoseSMTP analiza un error de envío. El matching por texto cubre los
// mensajes de net/smtp y de go-mail, que no exponen tipos propios.
func DiagnoseSMTP(err error) SMTPDiag {
	if err == nil {
		return SMTPDiag{Code: "unknown"}
	}
	if errors.Is(err, context.Canceled) {
		return SMTPDiag{Code: "canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return SMTPDiag{Code: "timeout", Temporary: true}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return SMTPDiag{Code: "timeout", Temporary: true}
	}

	s := strings.ToLower(err.Error())

	if strings.Contains(s, "timeout") {
		return SMTPDiag{Code: "timeout", Temporary: true}
	}

	// dial/conn/dns
	if strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connectex:") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "dial tcp") {
		return SMTPDiag{Code: "dial", Temporary: true}
	}

	// tls/handshake/cert
	if strings.Contains(s, "x509:") ||
		strings.Contains(s, "starttls") ||
		strings.Contains(s, "tls") && (strings.Contains(s, "handshake") || strings.Contains(s, "certificate")) {
		return SMTPDiag{Code: "tls"}
	}

	// credenciales
	if strings.Contains(s, "5.7.8") || strings.Contains(s, "535") ||
		strings.Contains(s, "username and password not accepted") ||
		strings.Contains(s, "authentication failed") ||
		strings.Contains(s, "auth") && strings.Contains(s, "failed") {
		return SMTPDiag{Code: "auth"}
	}

	// throttling temporal (4.x.x)
	if strings.Contains(s, "4.7.0") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "try again later") ||
		strings.Contains(s, "temporarily unavailable") ||
		strings.Contains(s, "451") || strings.Contains(s, "421") {
		return SMTPDiag{Code: "rate_limited", Temporary: true}
	}

	// destinatario inválido
	if strings.Contains(s, "5.1.1") || strings.Contains(s, "user unknown") ||
		strings.Contains(s, "mailbox not found") {
		return SMTPDiag{Code: "invalid_recipient"}
	}

	// políticas/DMARC/SPF
	if strings.Contains(s, "5.7.1") ||
		strings.Contains(s, "message rejected") ||
		strings.Contains(s, "policy") ||
		strings.Contains(s, "dmarc") || strings.Contains(s, "spf") {
		return SMTPDiag{Code: "rejected"}
	}

	if errors.As(err, &ne) {
		return SMTPDiag{Code: "network", Temporary: true}
	}
	return SMTPDiag{Code: "unknown"}
}
