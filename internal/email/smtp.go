package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/dropDatabas3/hellomail/internal/observability/logger"
)

// Sender entrega un Message ya armado.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPConfig son los datos para abrir la sesión SMTP.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	LocalName          string // nombre para EHLO/HELO
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// defaultSMTPTimeout acota dial y sesión cuando SMTPConfig.Timeout es 0.
const defaultSMTPTimeout = 10 * time.Second

// go-mail abre la conexión con mail.NetDialTimeout pero no la cierra si falla
// el saludo, EHLO o STARTTLS obligatorio. El hook deja el net.Conn en dialed
// para que dialAndSend lo cierre siempre; dialMu cubre el handshake.
var (
	hookOnce sync.Once
	dialMu   sync.Mutex
	dialed   net.Conn
)

func installDialHook() {
	hookOnce.Do(func() {
		next := mail.NetDialTimeout
		mail.NetDialTimeout = func(network, address string, timeout time.Duration) (net.Conn, error) {
			conn, err := next(network, address, timeout)
			if err == nil {
				dialed = conn
			}
			return conn, err
		}
	})
}

// dialAndSend es DialAndSend con la conexión a cargo del caller: el net.Conn
// se cierra al terminar, haya fallado el handshake, el envío o el QUIT.
func dialAndSend(d *mail.Dialer, m *mail.Message) error {
	dialMu.Lock()
	dialed = nil
	sc, err := d.Dial()
	conn := dialed
	dialed = nil
	dialMu.Unlock()

	if conn != nil {
		defer conn.Close()
	}
	if err != nil {
		return err
	}
	defer sc.Close()
	return mail.Send(sc, m)
}

// SMTPSender implementa Sender con una sesión SMTP por envío:
// connect, (STARTTLS), auth, send, quit.
type SMTPSender struct {
	cfg SMTPConfig
	log *zap.Logger

	// dialAndSend se reemplaza en tests.
	dialAndSend func(d *mail.Dialer, m *mail.Message) error
}

// NewSMTPSender valida cfg y construye el sender. TLSMode vacío es "auto" y
// Timeout 0 es defaultSMTPTimeout.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%w: smtp host is required", ErrInvalidInput)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: smtp port %d", ErrInvalidInput, cfg.Port)
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	switch cfg.TLSMode {
	case "auto", "starttls", "ssl", "none":
	default:
		return nil, fmt.Errorf("%w: tls mode %q", ErrInvalidInput, cfg.TLSMode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	installDialHook()
	return &SMTPSender{
		cfg:         cfg,
		log:         logger.Named("smtp").With(logger.Layer("sender")),
		dialAndSend: dialAndSend,
	}, nil
}

// WithLogger reemplaza el logger del sender.
func (s *SMTPSender) WithLogger(l *zap.Logger) *SMTPSender {
	if l != nil {
		s.log = l
	}
	return s
}

func (s *SMTPSender) dialer(timeout time.Duration) *mail.Dialer {
	// NewDialer ya activa SSL implícito en el puerto 465
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.LocalName = s.cfg.LocalName
	d.Timeout = timeout
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, // sólo dev
	}

	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.SSL = false
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.SSL = false
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto": STARTTLS si el server lo anuncia, sino texto plano
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	return d
}

func (s *SMTPSender) buildMessage(msg *Message) *mail.Message {
	m := mail.NewMessage()
	m.SetAddressHeader("From", msg.From.Address, msg.From.Name)
	m.SetAddressHeader("To", msg.To.Address, msg.To.Name)
	m.SetHeader("Subject", msg.Subject)
	if msg.ID != "" {
		m.SetHeader("Message-ID", "<"+msg.ID+"@"+s.messageIDDomain(msg)+">")
	}
	m.SetBody("text/html", msg.HTML)
	return m
}

func (s *SMTPSender) messageIDDomain(msg *Message) string {
	if s.cfg.LocalName != "" {
		return s.cfg.LocalName
	}
	if i := strings.LastIndexByte(msg.From.Address, '@'); i >= 0 && i < len(msg.From.Address)-1 {
		return msg.From.Address[i+1:]
	}
	return s.cfg.Host
}

// Send abre la sesión, entrega y la cierra. Respeta la cancelación de ctx
// antes de conectar y acota el timeout al deadline de ctx.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := s.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < timeout {
			timeout = rem
		}
	}

	log := s.log.With(
		logger.Host(s.cfg.Host),
		logger.Int("port", s.cfg.Port),
		logger.MessageID(msg.ID),
		logger.Recipient(msg.To.Address),
	)
	log.Debug("smtp send try",
		logger.String("tls_mode", s.cfg.TLSMode),
		logger.String("subject", msg.Subject),
	)

	if err := s.dialAndSend(s.dialer(timeout), s.buildMessage(msg)); err != nil {
		log.Debug("smtp send failed", logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Debug("smtp send ok")
	return nil
}
