package binding

import (
	"errors"
	"fmt"
	"net/http"

	validatorV10 "github.com/go-playground/validator/v10"
)

// BindError describes a single field that could not be bound or validated.
type BindError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e BindError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s' %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ValidationErrors collects every failing field of a request.
type ValidationErrors []BindError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve[0].Error())
}

// Details flattens any binding error into a field list suitable for a response body.
func Details(err error) []BindError {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	var be *BindError
	if errors.As(err, &be) {
		return []BindError{*be}
	}
	return []BindError{{Type: "bind_error", Message: err.Error()}}
}

// Query binds the request's query string into v and validates the result.
func Query(r *http.Request, v any) error {
	return QueryWithParser(r, v, NewQueryParser())
}

// QueryWithParser binds with a custom parser.
func QueryWithParser(r *http.Request, v any, parser *QueryParser) error {
	if err := parser.Parse(r.URL.Query(), v); err != nil {
		return err
	}
	return validate(v)
}

func validate(v any) error {
	err := validator.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validatorV10.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &BindError{
			Type:    "validation_error",
			Message: err.Error(),
		}
	}

	bindErrors := make(ValidationErrors, 0, len(validationErrors))
	for _, fe := range validationErrors {
		bindErrors = append(bindErrors, BindError{
			Type:    "validation_error",
			Field:   fe.Field(),
			Message: getValidationMessage(fe),
		})
	}
	return bindErrors
}
