package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/altius-academy/activity-service/internal/models"
)

// ScoreSummary is the aggregate of an answer trace
type ScoreSummary struct {
	TotalQuestions   int     `json:"totalQuestions"`
	CorrectAnswers   int     `json:"correctAnswers"`
	IncorrectAnswers int     `json:"incorrectAnswers"`
	Percentage       int     `json:"percentage"`
	DerivedGrade     float64 `json:"derivedGrade"`
}

type gradingService struct {
	logger *slog.Logger
}

func NewGradingService(logger *slog.Logger) GradingService {
	return &gradingService{logger: logger}
}

// Grade decodes a raw answer for activity and produces its trace record
func (s *gradingService) Grade(activity models.Activity, raw json.RawMessage) (models.Answer, models.AnswerRecord, error) {
	answer, err := DecodeAnswer(activity, raw)
	if err != nil {
		return nil, models.AnswerRecord{}, err
	}

	record := models.AnswerRecord{
		Question:      activity.Prompt(),
		StudentAnswer: DescribeAnswer(activity, answer),
		CorrectAnswer: DescribeCorrect(activity),
		IsCorrect:     Evaluate(activity, answer),
	}

	s.logger.Debug("Answer graded",
		"activity_type", activity.Kind(),
		"is_correct", record.IsCorrect)

	return answer, record, nil
}

func (s *gradingService) Aggregate(answers []models.AnswerRecord, totalCount int, maxGrade float64) (ScoreSummary, error) {
	return Aggregate(answers, totalCount, maxGrade)
}

// ===== EVALUATION =====

// Evaluate reports whether answer is correct for activity. A nil answer or an
// answer of another kind is never correct.
func Evaluate(activity models.Activity, answer models.Answer) bool {
	switch a := activity.(type) {
	case *models.MultipleChoiceActivity:
		ans, ok := answer.(models.ChoiceAnswer)
		if !ok || a.CorrectAnswer < 0 || a.CorrectAnswer >= len(a.Options) {
			return false
		}
		return ans.Text == a.Options[a.CorrectAnswer]

	case *models.DragDropActivity:
		ans, ok := answer.(models.OrderAnswer)
		return ok && equalInts(ans.Order, a.CorrectOrder)

	case *models.MatchLinesActivity:
		ans, ok := answer.(models.MatchAnswer)
		return ok && equalInts(ans.Matches, a.CorrectMatches)

	case *models.ShortAnswerActivity:
		ans, ok := answer.(models.TextAnswer)
		return ok && matchesShortAnswer(a, ans.Text)

	case *models.VideoActivity:
		ans, ok := answer.(models.VideoAnswer)
		if !ok || len(ans.FollowUps) != len(a.FollowUpQuestions) {
			return false
		}
		for i, fq := range a.FollowUpQuestions {
			if !Evaluate(fq, ans.FollowUps[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func matchesShortAnswer(a *models.ShortAnswerActivity, text string) bool {
	given := normalizeText(text, a.CaseSensitive)
	if given == "" {
		return false
	}
	if given == normalizeText(a.CorrectAnswer, a.CaseSensitive) {
		return true
	}
	for _, accepted := range a.AcceptedAnswers {
		if given == normalizeText(accepted, a.CaseSensitive) {
			return true
		}
	}
	return false
}

func normalizeText(s string, caseSensitive bool) string {
	s = strings.TrimSpace(s)
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ===== DECODING =====

// DecodeAnswer turns request JSON into the typed answer for activity.
// Accepted shapes:
//
//	multiple-choice  "option text" | 2 | {"text": "..."}
//	drag-drop        [2,0,1] | {"order": [...]}
//	match-lines      [0,1,2] | {"matches": [...]}
//	short-answer     "text" | {"text": "..."}
//	video            null | true | [<follow-up answers>] | {"followUps": [...]}
func DecodeAnswer(activity models.Activity, raw json.RawMessage) (models.Answer, error) {
	raw = bytes.TrimSpace(raw)

	switch a := activity.(type) {
	case *models.MultipleChoiceActivity:
		return decodeChoice(a, raw)

	case *models.DragDropActivity:
		order, err := decodeIndexes(raw, "order")
		if err != nil {
			return nil, err
		}
		return models.OrderAnswer{Order: order}, nil

	case *models.MatchLinesActivity:
		matches, err := decodeIndexes(raw, "matches")
		if err != nil {
			return nil, err
		}
		return models.MatchAnswer{Matches: matches}, nil

	case *models.ShortAnswerActivity:
		text, err := decodeText(raw)
		if err != nil {
			return nil, err
		}
		return models.TextAnswer{Text: text}, nil

	case *models.VideoActivity:
		return decodeVideo(a, raw)
	}

	return nil, fmt.Errorf("%w: %T", models.ErrUnknownActivityKind, activity)
}

func answerError(message string, value interface{}) error {
	return ValidationErrors{{Field: "answer", Message: message, Value: value, Rule: "answer"}}
}

func isEmptyJSON(raw []byte) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeChoice(a *models.MultipleChoiceActivity, raw []byte) (models.Answer, error) {
	if isEmptyJSON(raw) {
		return nil, answerError("is required", nil)
	}

	var index int
	if err := json.Unmarshal(raw, &index); err == nil {
		if index < 0 || index >= len(a.Options) {
			return nil, answerError("option index out of range", index)
		}
		return models.ChoiceAnswer{Text: a.Options[index]}, nil
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}
	return models.ChoiceAnswer{Text: text}, nil
}

func decodeText(raw []byte) (string, error) {
	if isEmptyJSON(raw) {
		return "", answerError("is required", nil)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var wrapped struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Text == nil {
		return "", answerError("must be a string", string(raw))
	}
	return *wrapped.Text, nil
}

func decodeIndexes(raw []byte, field string) ([]int, error) {
	if isEmptyJSON(raw) {
		return nil, answerError("is required", nil)
	}

	var indexes []int
	if err := json.Unmarshal(raw, &indexes); err == nil {
		return indexes, nil
	}

	var wrapped map[string][]int
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, answerError("must be an array of indexes", string(raw))
	}
	indexes, ok := wrapped[field]
	if !ok {
		return nil, answerError(fmt.Sprintf("must contain %q", field), string(raw))
	}
	return indexes, nil
}

func decodeVideo(a *models.VideoActivity, raw []byte) (models.Answer, error) {
	var items []json.RawMessage

	switch {
	case isEmptyJSON(raw), bytes.Equal(raw, []byte("true")):
		// acknowledgement only
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, answerError("must be an array of follow-up answers", string(raw))
		}
	default:
		var wrapped struct {
			FollowUps []json.RawMessage `json:"followUps"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, answerError("must contain followUps", string(raw))
		}
		items = wrapped.FollowUps
	}

	if len(items) != len(a.FollowUpQuestions) {
		return nil, answerError(
			fmt.Sprintf("expected %d follow-up answers, got %d", len(a.FollowUpQuestions), len(items)),
			len(items))
	}

	answer := models.VideoAnswer{FollowUps: make([]models.Answer, 0, len(items))}
	for i, fq := range a.FollowUpQuestions {
		nested, err := DecodeAnswer(fq, items[i])
		if err != nil {
			return nil, fmt.Errorf("follow-up %d: %w", i, err)
		}
		answer.FollowUps = append(answer.FollowUps, nested)
	}
	return answer, nil
}

// ===== TRACE RENDERING =====

// DescribeAnswer renders the student's answer for the trace
func DescribeAnswer(activity models.Activity, answer models.Answer) string {
	switch ans := answer.(type) {
	case nil:
		return models.NoAnswerText
	case models.ChoiceAnswer:
		return ans.Text
	case models.TextAnswer:
		return ans.Text
	case models.OrderAnswer:
		return formatIndexes(ans.Order)
	case models.MatchAnswer:
		return formatIndexes(ans.Matches)
	case models.VideoAnswer:
		video, ok := activity.(*models.VideoActivity)
		if !ok || len(video.FollowUpQuestions) == 0 {
			return "Video visto"
		}
		parts := make([]string, 0, len(ans.FollowUps))
		for i, fa := range ans.FollowUps {
			if i < len(video.FollowUpQuestions) {
				parts = append(parts, DescribeAnswer(video.FollowUpQuestions[i], fa))
			}
		}
		return strings.Join(parts, " | ")
	}
	return models.NoAnswerText
}

// DescribeCorrect renders the expected answer for the trace
func DescribeCorrect(activity models.Activity) string {
	switch a := activity.(type) {
	case *models.MultipleChoiceActivity:
		if a.CorrectAnswer >= 0 && a.CorrectAnswer < len(a.Options) {
			return a.Options[a.CorrectAnswer]
		}
		return ""
	case *models.DragDropActivity:
		return formatIndexes(a.CorrectOrder)
	case *models.MatchLinesActivity:
		return formatIndexes(a.CorrectMatches)
	case *models.ShortAnswerActivity:
		return a.CorrectAnswer
	case *models.VideoActivity:
		if len(a.FollowUpQuestions) == 0 {
			return "Video visto"
		}
		parts := make([]string, 0, len(a.FollowUpQuestions))
		for _, fq := range a.FollowUpQuestions {
			parts = append(parts, DescribeCorrect(fq))
		}
		return strings.Join(parts, " | ")
	}
	return ""
}

func formatIndexes(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// UnansweredRecord is the trace entry for an activity left blank
func UnansweredRecord(activity models.Activity) models.AnswerRecord {
	return models.AnswerRecord{
		Question:      activity.Prompt(),
		StudentAnswer: models.NoAnswerText,
		CorrectAnswer: DescribeCorrect(activity),
		IsCorrect:     false,
	}
}

// ===== AGGREGATION =====

// Aggregate scores an answer trace. Activities missing from answers count as
// incorrect, so totalCount rather than len(answers) is the denominator.
func Aggregate(answers []models.AnswerRecord, totalCount int, maxGrade float64) (ScoreSummary, error) {
	if totalCount <= 0 {
		return ScoreSummary{}, fmt.Errorf("%w: no activities to score", ErrInvalidSession)
	}

	correct := 0
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}
	if correct > totalCount {
		correct = totalCount
	}

	percentage := RoundPercentage(correct, totalCount)

	return ScoreSummary{
		TotalQuestions:   totalCount,
		CorrectAnswers:   correct,
		IncorrectAnswers: totalCount - correct,
		Percentage:       percentage,
		DerivedGrade:     DerivedGrade(percentage, maxGrade),
	}, nil
}

// RoundPercentage is 100*correct/total rounded half up
func RoundPercentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(correct)*100/float64(total) + 0.5))
}

// DerivedGrade maps a percentage onto the task's grading scale
func DerivedGrade(percentage int, maxGrade float64) float64 {
	if maxGrade <= 0 {
		maxGrade = models.DefaultMaxGrade
	}
	return float64(percentage) / 100 * maxGrade
}

type ScoreTier string

const (
	TierExcellent      ScoreTier = "excellent"
	TierVeryGood       ScoreTier = "very_good"
	TierGood           ScoreTier = "good"
	TierCanImprove     ScoreTier = "can_improve"
	TierKeepPracticing ScoreTier = "keep_practicing"
)

// ScoreBand buckets a percentage into the feedback tier shown with results
func ScoreBand(percentage int) ScoreTier {
	switch {
	case percentage >= 90:
		return TierExcellent
	case percentage >= 80:
		return TierVeryGood
	case percentage >= 70:
		return TierGood
	case percentage >= 60:
		return TierCanImprove
	default:
		return TierKeepPracticing
	}
}

// BuildResult assembles the submission document from a finished trace
func BuildResult(summary ScoreSummary, answers []models.AnswerRecord, timeSpent int) models.SubmissionResult {
	if answers == nil {
		answers = []models.AnswerRecord{}
	}
	return models.SubmissionResult{
		TotalQuestions:   summary.TotalQuestions,
		CorrectAnswers:   summary.CorrectAnswers,
		IncorrectAnswers: summary.IncorrectAnswers,
		Percentage:       summary.Percentage,
		Answers:          answers,
		TimeSpent:        timeSpent,
	}
}
