package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altius-academy/activity-service/internal/models"
)

func TestEvaluate(t *testing.T) {
	mc := multipleChoice("Capital of France?", []string{"Madrid", "Paris", "Rome"}, 1)
	dd := &models.DragDropActivity{Question: "Order", Items: []string{"a", "b", "c"}, CorrectOrder: []int{2, 0, 1}}
	ml := &models.MatchLinesActivity{
		Question:       "Match",
		LeftItems:      []string{"1", "2", "3", "4"},
		RightItems:     []string{"one", "two", "three", "four"},
		CorrectMatches: []int{0, 1, 2, 3},
	}
	sa := &models.ShortAnswerActivity{Question: "Color of the sky", CorrectAnswer: "Blue", AcceptedAnswers: []string{"azul"}}
	saStrict := &models.ShortAnswerActivity{Question: "Symbol", CorrectAnswer: "Fe", CaseSensitive: true}
	video := &models.VideoActivity{
		Question:          "Watch",
		VideoURL:          "https://videos.example.com/1",
		FollowUpQuestions: []models.Activity{mc, sa},
	}
	bareVideo := &models.VideoActivity{Question: "Watch", VideoURL: "https://videos.example.com/2"}

	tests := []struct {
		name     string
		activity models.Activity
		answer   models.Answer
		want     bool
	}{
		{"multiple choice correct", mc, models.ChoiceAnswer{Text: "Paris"}, true},
		{"multiple choice wrong", mc, models.ChoiceAnswer{Text: "Rome"}, false},
		{"multiple choice exact match only", mc, models.ChoiceAnswer{Text: "paris"}, false},
		{"drag drop correct", dd, models.OrderAnswer{Order: []int{2, 0, 1}}, true},
		{"drag drop wrong order", dd, models.OrderAnswer{Order: []int{0, 1, 2}}, false},
		{"drag drop short", dd, models.OrderAnswer{Order: []int{2, 0}}, false},
		{"match lines all pairs", ml, models.MatchAnswer{Matches: []int{0, 1, 2, 3}}, true},
		{"match lines no partial credit", ml, models.MatchAnswer{Matches: []int{0, 1, 3, 2}}, false},
		{"short answer trimmed and case folded", sa, models.TextAnswer{Text: "  blue "}, true},
		{"short answer accepted alternative", sa, models.TextAnswer{Text: "AZUL"}, true},
		{"short answer wrong", sa, models.TextAnswer{Text: "green"}, false},
		{"short answer blank", sa, models.TextAnswer{Text: "   "}, false},
		{"short answer case sensitive", saStrict, models.TextAnswer{Text: "fe"}, false},
		{"short answer case sensitive trimmed", saStrict, models.TextAnswer{Text: " Fe "}, true},
		{"video all follow-ups right", video, models.VideoAnswer{FollowUps: []models.Answer{
			models.ChoiceAnswer{Text: "Paris"}, models.TextAnswer{Text: "blue"},
		}}, true},
		{"video one follow-up wrong", video, models.VideoAnswer{FollowUps: []models.Answer{
			models.ChoiceAnswer{Text: "Paris"}, models.TextAnswer{Text: "red"},
		}}, false},
		{"video acknowledged", bareVideo, models.VideoAnswer{}, true},
		{"kind mismatch", mc, models.TextAnswer{Text: "Paris"}, false},
		{"nil answer", mc, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.activity, tt.answer))
		})
	}
}

func TestDecodeAnswer(t *testing.T) {
	mc := multipleChoice("Pick", []string{"A", "B", "C"}, 2)
	video := &models.VideoActivity{
		Question:          "Watch",
		VideoURL:          "https://videos.example.com/1",
		FollowUpQuestions: []models.Activity{mc},
	}

	t.Run("choice by text", func(t *testing.T) {
		got, err := DecodeAnswer(mc, json.RawMessage(`"B"`))
		require.NoError(t, err)
		assert.Equal(t, models.ChoiceAnswer{Text: "B"}, got)
	})

	t.Run("choice by index", func(t *testing.T) {
		got, err := DecodeAnswer(mc, json.RawMessage(`2`))
		require.NoError(t, err)
		assert.Equal(t, models.ChoiceAnswer{Text: "C"}, got)
	})

	t.Run("choice index out of range", func(t *testing.T) {
		_, err := DecodeAnswer(mc, json.RawMessage(`7`))
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("choice missing", func(t *testing.T) {
		_, err := DecodeAnswer(mc, nil)
		assert.True(t, IsValidation(err))
	})

	t.Run("order bare and wrapped", func(t *testing.T) {
		dd := &models.DragDropActivity{Items: []string{"x", "y"}, CorrectOrder: []int{1, 0}}
		bare, err := DecodeAnswer(dd, json.RawMessage(`[1,0]`))
		require.NoError(t, err)
		wrapped, err := DecodeAnswer(dd, json.RawMessage(`{"order":[1,0]}`))
		require.NoError(t, err)
		assert.Equal(t, bare, wrapped)
	})

	t.Run("matches wrong key", func(t *testing.T) {
		ml := &models.MatchLinesActivity{LeftItems: []string{"a"}, RightItems: []string{"b"}, CorrectMatches: []int{0}}
		_, err := DecodeAnswer(ml, json.RawMessage(`{"order":[0]}`))
		assert.True(t, IsValidation(err))
	})

	t.Run("text wrapped", func(t *testing.T) {
		sa := &models.ShortAnswerActivity{CorrectAnswer: "x"}
		got, err := DecodeAnswer(sa, json.RawMessage(`{"text":"hello"}`))
		require.NoError(t, err)
		assert.Equal(t, models.TextAnswer{Text: "hello"}, got)
	})

	t.Run("video follow-ups", func(t *testing.T) {
		got, err := DecodeAnswer(video, json.RawMessage(`["C"]`))
		require.NoError(t, err)
		assert.Equal(t, models.VideoAnswer{FollowUps: []models.Answer{models.ChoiceAnswer{Text: "C"}}}, got)
		assert.True(t, Evaluate(video, got))
	})

	t.Run("video follow-up count mismatch", func(t *testing.T) {
		_, err := DecodeAnswer(video, json.RawMessage(`true`))
		assert.True(t, IsValidation(err))
	})

	t.Run("bare video acknowledgement", func(t *testing.T) {
		bare := &models.VideoActivity{Question: "Watch", VideoURL: "u"}
		got, err := DecodeAnswer(bare, json.RawMessage(`true`))
		require.NoError(t, err)
		assert.True(t, Evaluate(bare, got))
	})
}

func TestGradingService_Grade(t *testing.T) {
	svc := NewGradingService(testLogger())
	mc := multipleChoice("Capital of France?", []string{"Madrid", "Paris"}, 1)

	_, record, err := svc.Grade(mc, json.RawMessage(`"Madrid"`))
	require.NoError(t, err)
	assert.Equal(t, models.AnswerRecord{
		Question:      "Capital of France?",
		StudentAnswer: "Madrid",
		CorrectAnswer: "Paris",
		IsCorrect:     false,
	}, record)

	ml := &models.MatchLinesActivity{
		Question:       "Match",
		LeftItems:      []string{"a", "b"},
		RightItems:     []string{"A", "B"},
		CorrectMatches: []int{0, 1},
	}
	_, record, err = svc.Grade(ml, json.RawMessage(`[0,1]`))
	require.NoError(t, err)
	assert.True(t, record.IsCorrect)
	assert.Equal(t, "[0,1]", record.StudentAnswer)
	assert.Equal(t, "[0,1]", record.CorrectAnswer)
}

func TestAggregate(t *testing.T) {
	trace := func(correct, total int) []models.AnswerRecord {
		records := make([]models.AnswerRecord, total)
		for i := 0; i < correct; i++ {
			records[i].IsCorrect = true
		}
		return records
	}

	t.Run("four of five on a five point scale", func(t *testing.T) {
		summary, err := Aggregate(trace(4, 5), 5, 5.0)
		require.NoError(t, err)
		assert.Equal(t, 80, summary.Percentage)
		assert.InDelta(t, 4.0, summary.DerivedGrade, 1e-9)
		assert.Equal(t, 4, summary.CorrectAnswers)
		assert.Equal(t, 1, summary.IncorrectAnswers)
	})

	t.Run("rounds half up", func(t *testing.T) {
		cases := []struct{ correct, total, want int }{
			{1, 8, 13},
			{1, 3, 33},
			{2, 3, 67},
			{5, 8, 63},
			{7, 8, 88},
		}
		for _, c := range cases {
			summary, err := Aggregate(trace(c.correct, c.total), c.total, 5)
			require.NoError(t, err)
			assert.Equal(t, c.want, summary.Percentage, "%d/%d", c.correct, c.total)
		}
	})

	t.Run("missing answers count as incorrect", func(t *testing.T) {
		summary, err := Aggregate(trace(2, 2), 4, 10)
		require.NoError(t, err)
		assert.Equal(t, 50, summary.Percentage)
		assert.Equal(t, 2, summary.IncorrectAnswers)
		assert.InDelta(t, 5.0, summary.DerivedGrade, 1e-9)
	})

	t.Run("single question boundaries", func(t *testing.T) {
		none, err := Aggregate(trace(0, 1), 1, 5)
		require.NoError(t, err)
		all, err := Aggregate(trace(1, 1), 1, 5)
		require.NoError(t, err)

		assert.Equal(t, 0, none.Percentage)
		assert.InDelta(t, 0.0, none.DerivedGrade, 1e-9)
		assert.Equal(t, 100, all.Percentage)
		assert.InDelta(t, 5.0, all.DerivedGrade, 1e-9)
	})

	t.Run("empty session is invalid", func(t *testing.T) {
		_, err := Aggregate(nil, 0, 5)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("idempotent", func(t *testing.T) {
		answers := trace(3, 7)
		first, err := Aggregate(answers, 7, 5)
		require.NoError(t, err)
		second, err := Aggregate(answers, 7, 5)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("monotone in correct answers", func(t *testing.T) {
		const total = 9
		previous := -1
		for correct := 0; correct <= total; correct++ {
			summary, err := Aggregate(trace(correct, total), total, 5)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, summary.Percentage, previous)
			previous = summary.Percentage
		}
	})

	t.Run("default scale", func(t *testing.T) {
		summary, err := Aggregate(trace(1, 2), 2, 0)
		require.NoError(t, err)
		assert.InDelta(t, 2.5, summary.DerivedGrade, 1e-9)
	})
}

func TestScoreBand(t *testing.T) {
	assert.Equal(t, TierExcellent, ScoreBand(100))
	assert.Equal(t, TierExcellent, ScoreBand(90))
	assert.Equal(t, TierVeryGood, ScoreBand(89))
	assert.Equal(t, TierVeryGood, ScoreBand(80))
	assert.Equal(t, TierGood, ScoreBand(70))
	assert.Equal(t, TierCanImprove, ScoreBand(60))
	assert.Equal(t, TierKeepPracticing, ScoreBand(59))
	assert.Equal(t, TierKeepPracticing, ScoreBand(0))
}
