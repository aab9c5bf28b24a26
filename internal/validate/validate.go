package validate

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/victornm/quizit/internal/domain"
	"github.com/victornm/quizit/internal/errors"
)

var v = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return domain.QuestionType(fl.Field().String()).Valid()
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	return v
}

// Struct validates s against its `validate` tags. Failures are returned as CodeInvalidArgument.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Internal(fmt.Errorf("validate: %w", err))
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}

	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("%s", strings.Join(msgs, "; ")),
		errors.WithCause(err),
	)
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "question_type":
		return fmt.Sprintf("%s must be %q or %q", field, domain.QuestionTypeMultipleChoice, domain.QuestionTypeOpenEnded)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
