package operations

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"lectern/portal/internal/model"
)

const (
	ErrStoreUnavailable   = "store_unavailable"
	ErrProfileCourseUnset = "profile_course_unset"
	ErrMissingTitle       = "missing_title"
	ErrMissingDescription = "missing_description"
	ErrMissingDueDate     = "missing_due_date"
	ErrInvalidDueDate     = "invalid_due_date"
	ErrMissingLocation    = "missing_location"
	ErrMissingTime        = "missing_time"
	ErrMissingDay         = "missing_day"
	ErrInvalidDay         = "invalid_day"
	ErrStoreWriteFailed   = "store_write_failed"
	ErrServerError        = "server_error"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

const weekdayTag = "weekday"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation(weekdayTag, func(fl validator.FieldLevel) bool {
		return model.ValidWeekday(fl.Field().String())
	})
	return v
}

// validationCode maps the first failed field to its stable error code.
// Fields validate in declaration order, so the first missing input
// wins, matching the form's top-to-bottom order.
func validationCode(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrServerError
	}
	fe := verrs[0]
	if fe.Tag() == weekdayTag {
		return ErrInvalidDay
	}
	switch fe.Field() {
	case "Title":
		return ErrMissingTitle
	case "Description":
		return ErrMissingDescription
	case "DueDate":
		return ErrMissingDueDate
	case "Location":
		return ErrMissingLocation
	case "Time":
		return ErrMissingTime
	case "Day":
		return ErrMissingDay
	}
	return ErrServerError
}
