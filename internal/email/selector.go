package email

const (
	SubjectPasswordReset = "Password Reset"
	SubjectActivation    = "Activate Your Account"

	TemplatePasswordReset = "passwordReset.html"
	TemplateActivation    = "activation.html"

	LinkPathPasswordReset = "/pages/reset-password"
	LinkPathActivation    = "/pages/activate-account"
)

// Selection es lo que un Kind determina del email.
type Selection struct {
	Subject  string
	Template string
	LinkPath string
}

// Select mapea un Kind a su subject/template/link. Cualquier valor fuera de
// PasswordReset cae en activación; no hay error para kinds desconocidos.
func Select(k Kind) Selection {
	if k == PasswordReset {
		return Selection{
			Subject:  SubjectPasswordReset,
			Template: TemplatePasswordReset,
			LinkPath: LinkPathPasswordReset,
		}
	}
	return Selection{
		Subject:  SubjectActivation,
		Template: TemplateActivation,
		LinkPath: LinkPathActivation,
	}
}

// Resolve devuelve el kind efectivo: PasswordReset o UserActivation.
func (k Kind) Resolve() Kind {
	if k == PasswordReset {
		return PasswordReset
	}
	return UserActivation
}
