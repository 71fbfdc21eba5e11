package email

import "errors"

var (
	ErrInvalidInput     = errors.New("email: invalid input")
	ErrTemplateNotFound = errors.New("email: template not found")
	ErrTemplateRender   = errors.New("email: template render failed")
	ErrSendFailed       = errors.New("email: send failed")
)
