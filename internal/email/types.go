package email

import (
	"net/mail"
	"strings"
)

// Kind selecciona subject, template y link del email.
// El valor cero no es un kind válido y se trata como UserActivation.
type Kind int

const (
	PasswordReset Kind = iota + 1
	UserActivation
)

func (k Kind) String() string {
	switch k {
	case PasswordReset:
		return "password_reset"
	case UserActivation:
		return "user_activation"
	default:
		return "unknown"
	}
}

// ParseKind acepta "password_reset", "PasswordReset", "password-reset",
// "user_activation", "activation", etc. Un texto desconocido devuelve
// UserActivation y ok=false.
func ParseKind(s string) (k Kind, ok bool) {
	norm := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "passwordreset", "reset":
		return PasswordReset, true
	case "useractivation", "activation", "activate":
		return UserActivation, true
	default:
		return UserActivation, false
	}
}

// Mailbox es un par (nombre, dirección).
type Mailbox struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// String devuelve la forma RFC 5322 ("Name <addr>").
func (m Mailbox) String() string {
	return (&mail.Address{Name: m.Name, Address: m.Address}).String()
}

// Activation es el payload del link: código opaco + URL base del frontend.
type Activation struct {
	Code string `json:"code"`
	URL  string `json:"url,omitempty"`
}

// Message es el email ya armado. Se construye por llamada y no se reutiliza.
type Message struct {
	ID      string // uuid, también usado en el header Message-ID
	Kind    Kind
	From    Mailbox
	To      Mailbox
	Subject string
	HTML    string
}
