package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `[
	{"type":"multiple-choice","question":"2+2?","options":["3","4","5"],"correctAnswer":1},
	{"type":"drag-drop","question":"Sort","items":["b","a"],"correctOrder":[1,0]},
	{"type":"match-lines","question":"Match","leftItems":["cat","dog"],"rightItems":["meow","woof"],"correctMatches":[0,1]},
	{"type":"short-answer","question":"Capital?","correctAnswer":"Paris","acceptedAnswers":["paris, france"]},
	{"type":"video","question":"Watch","videoUrl":"https://v/1.mp4","followUpQuestions":[
		{"type":"multiple-choice","question":"Color?","options":["red","blue"],"correctAnswer":0}
	]}
]`

func TestParseActivities(t *testing.T) {
	activities, err := ParseActivities([]byte(sampleConfig))
	require.NoError(t, err)
	require.Len(t, activities, 5)

	kinds := make([]ActivityKind, 0, len(activities))
	for _, a := range activities {
		kinds = append(kinds, a.Kind())
	}
	assert.Equal(t, []ActivityKind{KindMultipleChoice, KindDragDrop, KindMatchLines, KindShortAnswer, KindVideo}, kinds)

	mc := activities[0].(*MultipleChoiceActivity)
	assert.Equal(t, 1, mc.CorrectAnswer)
	assert.Equal(t, "2+2?", mc.Prompt())

	sa := activities[3].(*ShortAnswerActivity)
	assert.Equal(t, []string{"paris, france"}, sa.AcceptedAnswers)

	video := activities[4].(*VideoActivity)
	require.Len(t, video.FollowUpQuestions, 1)
	assert.Equal(t, KindMultipleChoice, video.FollowUpQuestions[0].Kind())
}

func TestParseActivities_RoundTrip(t *testing.T) {
	activities, err := ParseActivities([]byte(sampleConfig))
	require.NoError(t, err)

	encoded, err := MarshalActivities(activities)
	require.NoError(t, err)

	again, err := ParseActivities(encoded)
	require.NoError(t, err)
	assert.Equal(t, activities, again)

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &raw))
	assert.Equal(t, "match-lines", raw[2]["type"])
}

func TestParseActivities_Errors(t *testing.T) {
	_, err := ParseActivities([]byte(`{"type":"video"}`))
	assert.Error(t, err)

	_, err = ParseActivities([]byte(`[{"type":"essay","question":"Why?"}]`))
	assert.ErrorIs(t, err, ErrUnknownActivityKind)

	_, err = ParseActivities([]byte(`[{"type":"video","videoUrl":"x","followUpQuestions":[{"type":"poll"}]}]`))
	assert.ErrorIs(t, err, ErrUnknownActivityKind)
}

func TestParseActivities_EncodedString(t *testing.T) {
	config := `[{"type":"short-answer","question":"Capital of Peru?","correctAnswer":"Lima"}]`
	encoded, err := json.Marshal(config)
	require.NoError(t, err)

	activities, err := ParseActivities(encoded)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, KindShortAnswer, activities[0].Kind())

	unquoted, err := UnquoteActivityConfig(encoded)
	require.NoError(t, err)
	assert.JSONEq(t, config, string(unquoted))

	same, err := UnquoteActivityConfig([]byte(config))
	require.NoError(t, err)
	assert.Equal(t, config, string(same))

	_, err = UnquoteActivityConfig([]byte(`"[{"`))
	assert.Error(t, err)
}

func TestGradeTask_Activities(t *testing.T) {
	task := &GradeTask{TaskType: TaskTypeInteractive}
	activities, err := task.Activities()
	require.NoError(t, err)
	assert.Nil(t, activities)

	task.ActivityConfig = []byte(sampleConfig)
	activities, err = task.Activities()
	require.NoError(t, err)
	assert.Len(t, activities, 5)

	assert.Equal(t, DefaultMaxGrade, task.EffectiveMaxGrade())
	task.MaxGrade = 10
	assert.Equal(t, 10.0, task.EffectiveMaxGrade())
}
