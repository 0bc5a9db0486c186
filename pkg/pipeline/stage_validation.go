package pipeline

import (
	"github.com/go-playground/validator/v10"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
)

// Validatable is implemented by payload types with custom validation
// logic beyond struct tags.
type Validatable interface {
	Validate() error
}

// Validation rejects malformed messages with a terminal invalid-message
// failure. It checks, in order: a Validatable implementation if
// present, then struct-tag validation via go-playground/validator/v10,
// so one reusable stage replaces per-payload validation helpers.
func Validation(v *validator.Validate) Stage {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			if validatable, ok := msg.(Validatable); ok {
				if err := validatable.Validate(); err != nil {
					return message.Failure(herrors.Wrap(herrors.CodeInvalid, "message failed validation", err), msg)
				}
			} else if err := v.Struct(msg); err != nil {
				if _, isInvalidUsage := err.(*validator.InvalidValidationError); !isInvalidUsage {
					return message.Failure(herrors.Wrap(herrors.CodeInvalid, "message failed validation", err), msg)
				}
			}
			return next(msg, pctx)
		}
	}
}
