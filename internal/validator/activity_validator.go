package validator

import (
	"fmt"
	"strings"

	"github.com/altius-academy/activity-service/internal/models"
)

const activityConfigField = "activityConfig"

// ActivityValidator checks the structural invariants of activity definitions
type ActivityValidator struct{}

// NewActivityValidator creates a new activity validator
func NewActivityValidator() *ActivityValidator {
	return &ActivityValidator{}
}

// ParseAndValidate decodes an activity configuration and validates every
// activity in it.
func (v *ActivityValidator) ParseAndValidate(config []byte) ([]models.Activity, ValidationErrors) {
	if len(config) == 0 {
		return nil, ValidationErrors{{
			Field:   activityConfigField,
			Message: "is required for interactive tasks",
			Rule:    "required",
		}}
	}

	activities, err := models.ParseActivities(config)
	if err != nil {
		return nil, ValidationErrors{{
			Field:   activityConfigField,
			Message: err.Error(),
			Rule:    "activity_config",
		}}
	}

	if errs := v.ValidateActivities(activities); len(errs) > 0 {
		return nil, errs
	}
	return activities, nil
}

// ValidateActivities validates a full activity list
func (v *ActivityValidator) ValidateActivities(activities []models.Activity) ValidationErrors {
	return ValidateActivities(activities)
}

// ValidateActivities validates a full activity list. An empty list is
// rejected since a session needs at least one activity to grade.
func ValidateActivities(activities []models.Activity) ValidationErrors {
	var errors ValidationErrors

	if len(activities) == 0 {
		return append(errors, ValidationError{
			Field:   activityConfigField,
			Message: "must contain at least one activity",
			Value:   0,
			Rule:    "min",
		})
	}

	for i, a := range activities {
		errors = append(errors, validateActivity(fmt.Sprintf("%s[%d]", activityConfigField, i), a, false)...)
	}
	return errors
}

func validateActivity(path string, activity models.Activity, nested bool) ValidationErrors {
	var errors ValidationErrors

	if activity == nil {
		return append(errors, invalid(path, "activity is missing", nil))
	}

	if strings.TrimSpace(activity.Prompt()) == "" {
		errors = append(errors, invalid(path+".question", "is required", activity.Prompt()))
	}

	switch a := activity.(type) {
	case *models.MultipleChoiceActivity:
		if len(a.Options) < 2 {
			errors = append(errors, invalid(path+".options", "must have at least 2 options", len(a.Options)))
		}
		if a.CorrectAnswer < 0 || a.CorrectAnswer >= len(a.Options) {
			errors = append(errors, invalid(path+".correctAnswer", "must reference an existing option", a.CorrectAnswer))
		}

	case *models.DragDropActivity:
		if len(a.Items) == 0 {
			errors = append(errors, invalid(path+".items", "must not be empty", 0))
		}
		if !isPermutation(a.CorrectOrder, len(a.Items)) {
			errors = append(errors, invalid(path+".correctOrder", "must be a permutation of the item indices", a.CorrectOrder))
		}

	case *models.MatchLinesActivity:
		if len(a.LeftItems) == 0 || len(a.RightItems) == 0 {
			errors = append(errors, invalid(path+".leftItems", "both sides must have items", nil))
		}
		if len(a.CorrectMatches) != len(a.RightItems) {
			errors = append(errors, invalid(path+".correctMatches", "must have one entry per right item", len(a.CorrectMatches)))
		}
		for j, m := range a.CorrectMatches {
			if m < 0 || m >= len(a.LeftItems) {
				errors = append(errors, invalid(fmt.Sprintf("%s.correctMatches[%d]", path, j), "must reference an existing left item", m))
			}
		}

	case *models.ShortAnswerActivity:
		if strings.TrimSpace(a.CorrectAnswer) == "" {
			errors = append(errors, invalid(path+".correctAnswer", "is required", a.CorrectAnswer))
		}

	case *models.VideoActivity:
		if nested {
			return append(errors, invalid(path, "a follow-up question cannot be a video", nil))
		}
		if strings.TrimSpace(a.VideoURL) == "" {
			errors = append(errors, invalid(path+".videoUrl", "is required", a.VideoURL))
		}
		for j, fq := range a.FollowUpQuestions {
			errors = append(errors, validateActivity(fmt.Sprintf("%s.followUpQuestions[%d]", path, j), fq, true)...)
		}

	default:
		errors = append(errors, invalid(path+".type", "unsupported activity type", activity.Kind()))
	}

	return errors
}

// isPermutation reports whether order holds each of 0..n-1 exactly once
func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

func invalid(field, message string, value interface{}) ValidationError {
	return ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Rule:    "activity",
	}
}
