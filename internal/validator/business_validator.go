package validator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/altius-academy/activity-service/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator on top of the shared
// struct validator
func NewBusinessValidator(validate *validator.Validate) *BusinessValidator {
	if validate == nil {
		validate = validator.New()
	}

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateTaskCreate validates grade task creation business rules
func (bv *BusinessValidator) ValidateTaskCreate(req *models.CreateGradeTaskRequest) ValidationErrors {
	var errors ValidationErrors

	// Basic struct validation
	errors = append(errors, bv.Validate(req)...)

	// Additional business validations
	errors = append(errors, bv.validateTaskBusinessRules(req)...)

	return errors
}

// ValidateSessionStart validates that a session may be started on the task
func (bv *BusinessValidator) ValidateSessionStart(task *models.GradeTask, studentID string) ValidationErrors {
	var errors ValidationErrors

	if task.StudentID != studentID {
		errors = append(errors, ValidationError{
			Field:   "studentId",
			Message: "task is not assigned to this student",
			Rule:    "business_logic",
		})
	}

	if task.Status == models.TaskSubmitted || task.Status == models.TaskGraded {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "task has already been submitted",
			Value:   task.Status,
			Rule:    "business_logic",
		})
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	// Due date validation (must be in future)
	bv.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true
		}

		var dueDate time.Time
		if field.Kind() == reflect.Ptr {
			dueDate = field.Elem().Interface().(time.Time)
		} else {
			dueDate = field.Interface().(time.Time)
		}

		return dueDate.After(time.Now())
	})
}

// validateTaskBusinessRules validates business rules for task creation
func (bv *BusinessValidator) validateTaskBusinessRules(req *models.CreateGradeTaskRequest) ValidationErrors {
	var errors ValidationErrors

	if req.DueDate != nil && req.DueDate.Before(time.Now()) {
		errors = append(errors, ValidationError{
			Field:   "dueDate",
			Message: "must be in the future",
			Value:   req.DueDate,
			Rule:    "future_date",
		})
	}

	switch req.TaskType {
	case models.TaskTypeInteractive:
		// activity invariants are checked by ActivityValidator
	case models.TaskTypeMultimedia:
		if len(req.ActivityConfig) > 0 && string(req.ActivityConfig) != "null" {
			errors = append(errors, ValidationError{
				Field:   "activityConfig",
				Message: fmt.Sprintf("is only allowed for %s tasks", models.TaskTypeInteractive),
				Rule:    "business_logic",
			})
		}
		if req.TimeLimitSeconds != 0 {
			errors = append(errors, ValidationError{
				Field:   "timeLimitSeconds",
				Message: fmt.Sprintf("is only allowed for %s tasks", models.TaskTypeInteractive),
				Value:   req.TimeLimitSeconds,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}
