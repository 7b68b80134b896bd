package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"spotbook/pkg/logger"

	"github.com/go-playground/validator/v10"
)

const tagDateOnly = "dateonly"

// CreateBookingRequest is the body of a create call plus the spot from the path.
type CreateBookingRequest struct {
	SpotID    string `json:"-" validate:"required,max=64"`
	StartDate string `json:"startDate" validate:"required,dateonly"`
	EndDate   string `json:"endDate" validate:"required,dateonly"`
}

type EditBookingRequest struct {
	BookingID string `json:"-" validate:"required,max=64"`
	StartDate string `json:"startDate" validate:"required,dateonly"`
	EndDate   string `json:"endDate" validate:"required,dateonly"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details flattens the errors into field -> message for an error response.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation(tagDateOnly, validateDateOnly); err != nil {
		log.Fatal("Failed to register 'dateonly' validator",
			"error", err,
		)
	}

	log.Debug("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

func validateDateOnly(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}

func (v *BookingValidator) ValidateCreate(req *CreateBookingRequest) error {
	return v.check(req)
}

func (v *BookingValidator) ValidateEdit(req *EditBookingRequest) error {
	return v.check(req)
}

func (v *BookingValidator) check(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case tagDateOnly:
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
