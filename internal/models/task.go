package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskType string

const (
	TaskTypeMultimedia  TaskType = "multimedia"
	TaskTypeInteractive TaskType = "interactive"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskSubmitted  TaskStatus = "submitted"
	TaskGraded     TaskStatus = "graded"
	TaskOverdue    TaskStatus = "overdue"
)

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionReturned  SubmissionStatus = "returned"
)

const (
	DefaultMaxScore = 100
	DefaultMaxGrade = 5.0
)

// GradeTask is an assignment given to one student. Interactive tasks carry
// their activities in ActivityConfig.
type GradeTask struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	Title       string       `json:"title" gorm:"not null;size:200;index"`
	Description *string      `json:"description" gorm:"type:text"`
	DueDate     *time.Time   `json:"dueDate"`
	Priority    TaskPriority `json:"priority" gorm:"default:medium;size:20"`
	Status      TaskStatus   `json:"status" gorm:"default:pending;index;size:20"`
	TaskType    TaskType     `json:"taskType" gorm:"not null;default:multimedia;size:20"`

	// Interactive configuration
	ActivityConfig   datatypes.JSON `json:"activityConfig" gorm:"type:jsonb"`
	TimeLimitSeconds int            `json:"timeLimitSeconds" gorm:"default:300"`

	// Grading scale
	MaxScore int     `json:"maxScore" gorm:"default:100"`
	MaxGrade float64 `json:"maxGrade" gorm:"default:5"`

	// Ownership
	TeacherID   string  `json:"teacherId" gorm:"not null;index;size:255"`
	StudentID   string  `json:"studentId" gorm:"not null;index;size:255"`
	SchoolGrade *string `json:"schoolGrade" gorm:"size:50"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Submissions []TaskSubmission `json:"-" gorm:"foreignKey:TaskID"`
}

func (GradeTask) TableName() string {
	return "grade_tasks"
}

// IsInteractive reports whether the task is played as an activity session
func (t *GradeTask) IsInteractive() bool {
	return t.TaskType == TaskTypeInteractive
}

// Activities decodes the task's activity configuration
func (t *GradeTask) Activities() ([]Activity, error) {
	if len(t.ActivityConfig) == 0 {
		return nil, nil
	}
	return ParseActivities(t.ActivityConfig)
}

// EffectiveMaxGrade falls back to the default grading scale
func (t *GradeTask) EffectiveMaxGrade() float64 {
	if t.MaxGrade <= 0 {
		return DefaultMaxGrade
	}
	return t.MaxGrade
}

type TaskSubmission struct {
	ID                uint             `json:"id" gorm:"primaryKey"`
	TaskID            uint             `json:"taskId" gorm:"not null;index:idx_submission_task_student"`
	StudentID         string           `json:"studentId" gorm:"not null;size:255;index:idx_submission_task_student"`
	SubmissionText    string           `json:"submissionText" gorm:"type:text"`
	SubmissionFileURL *string          `json:"submissionFileUrl" gorm:"size:500"`
	Status            SubmissionStatus `json:"status" gorm:"default:submitted;index;size:20"`

	// Grading
	Score    *float64   `json:"score"`
	Feedback *string    `json:"feedback" gorm:"type:text"`
	GradedAt *time.Time `json:"gradedAt"`

	// Replay protection for retried writes
	IdempotencyKey *string `json:"-" gorm:"uniqueIndex;size:64"`

	SubmittedAt time.Time `json:"submittedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Relations
	Task GradeTask `json:"-" gorm:"foreignKey:TaskID"`
}

func (TaskSubmission) TableName() string {
	return "task_submissions"
}

// ===== REQUEST / RESPONSE DTOs =====

type CreateGradeTaskRequest struct {
	Title            string         `json:"title" validate:"required,task_title"`
	Description      *string        `json:"description" validate:"omitempty,max=2000"`
	DueDate          *time.Time     `json:"dueDate"`
	Priority         TaskPriority   `json:"priority" validate:"omitempty,task_priority"`
	TaskType         TaskType       `json:"taskType" validate:"required,task_type"`
	ActivityConfig   datatypes.JSON `json:"activityConfig"`
	TimeLimitSeconds int            `json:"timeLimitSeconds" validate:"omitempty,time_limit"`
	MaxScore         int            `json:"maxScore" validate:"omitempty,min=1,max=1000"`
	MaxGrade         float64        `json:"maxGrade" validate:"omitempty,max_grade"`
	StudentID        string         `json:"studentId" validate:"required"`
	SchoolGrade      *string        `json:"schoolGrade" validate:"omitempty,max=50"`
}

// GradeTaskView is what GET /student/grade-tasks/{taskId} returns
type GradeTaskView struct {
	GradeTask
	Submission *TaskSubmission `json:"submission"`
}
