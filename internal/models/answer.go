package models

// NoAnswerText marks an activity the student never answered
const NoAnswerText = "Sin respuesta"

// Answer is a student's response to one activity. Like Activity, the set of
// implementations is closed.
type Answer interface {
	answerKind() ActivityKind
}

// ChoiceAnswer carries the text of the selected option
type ChoiceAnswer struct {
	Text string `json:"text"`
}

// OrderAnswer is the item order produced by a drag-drop activity
type OrderAnswer struct {
	Order []int `json:"order"`
}

// MatchAnswer maps each right item (by position) to a left item index
type MatchAnswer struct {
	Matches []int `json:"matches"`
}

type TextAnswer struct {
	Text string `json:"text"`
}

// VideoAnswer acknowledges a video and carries the follow-up answers, one per
// follow-up question, in order.
type VideoAnswer struct {
	FollowUps []Answer `json:"followUps"`
}

func (ChoiceAnswer) answerKind() ActivityKind { return KindMultipleChoice }
func (OrderAnswer) answerKind() ActivityKind  { return KindDragDrop }
func (MatchAnswer) answerKind() ActivityKind  { return KindMatchLines }
func (TextAnswer) answerKind() ActivityKind   { return KindShortAnswer }
func (VideoAnswer) answerKind() ActivityKind  { return KindVideo }

// AnswerKind exposes the activity kind an answer belongs to
func AnswerKind(a Answer) ActivityKind {
	if a == nil {
		return ""
	}
	return a.answerKind()
}

// AnswerRecord is one entry of the answer trace sent with a submission
type AnswerRecord struct {
	Question      string `json:"question"`
	StudentAnswer string `json:"studentAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// SubmissionResult is the JSON document embedded in submissionText
type SubmissionResult struct {
	TotalQuestions   int            `json:"totalQuestions"`
	CorrectAnswers   int            `json:"correctAnswers"`
	IncorrectAnswers int            `json:"incorrectAnswers"`
	Percentage       int            `json:"percentage"`
	Answers          []AnswerRecord `json:"answers"`
	TimeSpent        int            `json:"timeSpent"` // seconds
}

// SubmitTaskRequest is the body of POST /student/grade-tasks/{taskId}/submit
type SubmitTaskRequest struct {
	SubmissionText    string  `json:"submissionText" validate:"required"`
	SubmissionFileURL *string `json:"submissionFileUrl"`
}
