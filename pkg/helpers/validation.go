package helpers

import (
	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps go-playground validator with equipment domain rules
type CustomValidator struct {
	validate *validator.Validate
}

var equipmentTypes = map[string]bool{
	"telescope": true,
	"camera":    true,
	"mount":     true,
	"filter":    true,
	"accessory": true,
	"software":  true,
	"sensor":    true,
}

var usageTypes = map[string]bool{
	"imaging": true,
	"guiding": true,
}

var rejectionReasons = map[string]bool{
	"DUPLICATE":         true,
	"TYPO":              true,
	"WRONG_BRAND":       true,
	"INACCURATE_DATA":   true,
	"INSUFFICIENT_DATA": true,
	"OTHER":             true,
}

// NewCustomValidator creates a new custom validator with equipment rules
func NewCustomValidator() *CustomValidator {
	v := validator.New()

	v.RegisterValidation("equipment_type", validateEquipmentType)
	v.RegisterValidation("usage_type", validateUsageType)
	v.RegisterValidation("rejection_reason", validateRejectionReason)

	return &CustomValidator{validate: v}
}

// Validate validates a struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validate.Struct(i)
}

func validateEquipmentType(fl validator.FieldLevel) bool {
	return equipmentTypes[fl.Field().String()]
}

func validateUsageType(fl validator.FieldLevel) bool {
	return usageTypes[fl.Field().String()]
}

func validateRejectionReason(fl validator.FieldLevel) bool {
	return rejectionReasons[fl.Field().String()]
}
