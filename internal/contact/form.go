// Package contact implements the contact form: its field state, the
// submit/revert state machine and the senders that deliver a message.
package contact

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Form holds the four contact fields. Only presence is checked.
type Form struct {
	Name    string `json:"name" form:"name" validate:"required"`
	Email   string `json:"email" form:"email" validate:"required"`
	Subject string `json:"subject" form:"subject" validate:"required"`
	Message string `json:"message" form:"message" validate:"required"`
}

// Field names accepted by SetField.
const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldSubject = "subject"
	FieldMessage = "message"
)

var validate = validator.New()

// Validate reports the first empty field. Whitespace-only counts as empty.
func (f Form) Validate() error {
	trimmed := Form{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Subject: strings.TrimSpace(f.Subject),
		Message: strings.TrimSpace(f.Message),
	}
	if err := validate.Struct(trimmed); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is required", ErrIncomplete, strings.ToLower(verrs[0].Field()))
		}
		return fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	return nil
}

func (f *Form) set(name, value string) error {
	switch name {
	case FieldName:
		f.Name = value
	case FieldEmail:
		f.Email = value
	case FieldSubject:
		f.Subject = value
	case FieldMessage:
		f.Message = value
	default:
		return fmt.Errorf("unknown contact field %q", name)
	}
	return nil
}
