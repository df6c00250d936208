package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/altius-academy/activity-service/internal/models"
)

const (
	minTimeLimitSeconds = 10
	maxTimeLimitSeconds = 7200
)

// Validator is the main validator instance that combines all validation types
type Validator struct {
	structValidator   *validator.Validate
	businessValidator *BusinessValidator
	activityValidator *ActivityValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:   structValidator,
		businessValidator: NewBusinessValidator(structValidator),
		activityValidator: NewActivityValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Validate validates struct tags and returns our error type
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		if errs := ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

// Business returns the business validator
func (v *Validator) Business() *BusinessValidator {
	return v.businessValidator
}

// Activity returns the activity configuration validator
func (v *Validator) Activity() *ActivityValidator {
	return v.activityValidator
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("activity_kind", validateActivityKind)
	validate.RegisterValidation("task_type", validateTaskType)
	validate.RegisterValidation("task_priority", validateTaskPriority)
	validate.RegisterValidation("user_role", validateUserRole)

	validate.RegisterValidation("time_limit", func(fl validator.FieldLevel) bool {
		seconds := fl.Field().Int()
		return seconds >= minTimeLimitSeconds && seconds <= maxTimeLimitSeconds
	})

	validate.RegisterValidation("max_grade", func(fl validator.FieldLevel) bool {
		grade := fl.Field().Float()
		return grade >= 1 && grade <= 100
	})

	validate.RegisterValidation("task_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validation functions
func validateActivityKind(fl validator.FieldLevel) bool {
	return models.IsValidActivityKind(fl.Field().String())
}

func validateTaskType(fl validator.FieldLevel) bool {
	switch models.TaskType(fl.Field().String()) {
	case models.TaskTypeMultimedia, models.TaskTypeInteractive:
		return true
	}
	return false
}

func validateTaskPriority(fl validator.FieldLevel) bool {
	switch models.TaskPriority(fl.Field().String()) {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		return true
	}
	return false
}

func validateUserRole(fl validator.FieldLevel) bool {
	validRoles := []models.UserRole{
		models.RoleStudent,
		models.RoleTeacher,
		models.RoleCoordinator,
		models.RoleAdmin,
	}

	value := fl.Field().String()
	for _, validRole := range validRoles {
		if string(validRole) == value {
			return true
		}
	}
	return false
}
