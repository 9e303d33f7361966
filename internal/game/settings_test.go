package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsFromPayloadDefaults(t *testing.T) {
	for _, payload := range []map[string]interface{}{
		nil,
		{},
		{"rounds": "ten", "questionsPerRound": true, "secondsBetweenQuestions": nil, "questionDurationSeconds": []int{1}},
	} {
		s := SettingsFromPayload(payload)
		assert.Equal(t, DefaultSettings(), s, "payload %v should degrade to defaults", payload)
	}
}

func TestSettingsFromPayloadClamps(t *testing.T) {
	s := SettingsFromPayload(map[string]interface{}{
		"rounds":                  float64(99),
		"questionsPerRound":       float64(1),
		"secondsBetweenQuestions": float64(-5),
		"questionDurationSeconds": float64(500),
	})
	assert.Equal(t, 10, s.Rounds)
	assert.Equal(t, 3, s.QuestionsPerRound)
	assert.Equal(t, 2, s.SecondsBetweenQuestions)
	assert.Equal(t, 40, s.QuestionDurationSeconds)
}

func TestSettingsFromPayloadPassesValidValues(t *testing.T) {
	s := SettingsFromPayload(map[string]interface{}{
		"rounds":                  float64(3),
		"questionsPerRound":       float64(7),
		"secondsBetweenQuestions": float64(4),
		"questionDurationSeconds": float64(15),
	})
	assert.Equal(t, Settings{Rounds: 3, QuestionsPerRound: 7, SecondsBetweenQuestions: 4, QuestionDurationSeconds: 15}, s)
}

func TestNormalizeAlwaysInRange(t *testing.T) {
	for _, v := range []int{-100, -1, 0, 1, 2, 5, 8, 19, 20, 21, 40, 41, 1000} {
		s := Settings{Rounds: v, QuestionsPerRound: v, SecondsBetweenQuestions: v, QuestionDurationSeconds: v}.Normalize()
		assert.GreaterOrEqual(t, s.Rounds, 1)
		assert.LessOrEqual(t, s.Rounds, 10)
		assert.GreaterOrEqual(t, s.QuestionsPerRound, 3)
		assert.LessOrEqual(t, s.QuestionsPerRound, 20)
		assert.GreaterOrEqual(t, s.SecondsBetweenQuestions, 2)
		assert.LessOrEqual(t, s.SecondsBetweenQuestions, 20)
		assert.GreaterOrEqual(t, s.QuestionDurationSeconds, 8)
		assert.LessOrEqual(t, s.QuestionDurationSeconds, 40)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, v := range []int{-3, 0, 1, 7, 25, 999} {
		s := Settings{Rounds: v, QuestionsPerRound: v, SecondsBetweenQuestions: v, QuestionDurationSeconds: v}
		once := s.Normalize()
		assert.Equal(t, once, once.Normalize())
	}
}
