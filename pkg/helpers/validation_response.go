package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationErrorResponse represents the validation error response format
type ValidationErrorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// FormatValidationError formats a validator.FieldError into an error message
func FormatValidationError(fe validator.FieldError) string {
	fieldName := getFieldName(fe)

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required", fieldName)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters", fieldName, fe.Param())
	case "max":
		return fmt.Sprintf("The %s field must not exceed %s characters", fieldName, fe.Param())
	case "oneof":
		return fmt.Sprintf("The %s field must be one of: %s", fieldName, fe.Param())
	case "equipment_type":
		return fmt.Sprintf("The %s field must be a valid equipment type", fieldName)
	case "usage_type":
		return fmt.Sprintf("The %s field must be either imaging or guiding", fieldName)
	case "rejection_reason":
		return fmt.Sprintf("The %s field must be a valid rejection reason", fieldName)
	default:
		return fmt.Sprintf("The %s field is invalid", fieldName)
	}
}

func getFieldName(fe validator.FieldError) string {
	fieldName := strings.ToLower(fe.Field())
	return strings.ReplaceAll(fieldName, "_", " ")
}

// WriteValidationErrorResponse writes a validation error response
func WriteValidationErrorResponse(w http.ResponseWriter, validationErrors validator.ValidationErrors) {
	fieldErrors := make(map[string]string)
	var firstMessage string

	for i, err := range validationErrors {
		message := FormatValidationError(err)
		fieldErrors[err.Field()] = message
		if i == 0 {
			firstMessage = message
		}
	}

	response := ValidationErrorResponse{
		Message: firstMessage,
		Errors:  fieldErrors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(response)
}
