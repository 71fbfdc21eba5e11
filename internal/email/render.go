package email

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	TokenActivationCode = "{{activationCode}}"
	TokenActivationURL  = "{{activationUrl}}"
)

// Sealer cifra el código antes de ponerlo en el link.
// *secretbox.Box lo implementa.
type Sealer interface {
	Seal(plain string) (string, error)
}

// BuildLink arma base + path + "?c=" + código (escapado para query).
func BuildLink(base, path, code string) string {
	return strings.TrimRight(base, "/") + path + "?c=" + url.QueryEscape(code)
}

// Render reemplaza los tokens en body. Es un reemplazo literal: no hay
// escaping ni motor de templates, y un token ausente simplemente no se toca.
// El link sólo se calcula si el body contiene {{activationUrl}}; con sealer
// nil el código va en claro.
func Render(body string, sel Selection, a Activation, sealer Sealer) (string, error) {
	link := ""
	if strings.Contains(body, TokenActivationURL) {
		if strings.TrimSpace(a.URL) == "" {
			return "", fmt.Errorf("%w: activation url is empty", ErrInvalidInput)
		}
		code := a.Code
		if sealer != nil {
			sealed, err := sealer.Seal(a.Code)
			if err != nil {
				return "", fmt.Errorf("%w: seal activation code: %w", ErrTemplateRender, err)
			}
			code = sealed
		}
		link = BuildLink(a.URL, sel.LinkPath, code)
	}

	// Una sola pasada: un código que contenga un token no se re-expande.
	r := strings.NewReplacer(
		TokenActivationCode, a.Code,
		TokenActivationURL, link,
	)
	return r.Replace(body), nil
}
