package game

// Settings is the host-tunable game configuration. Every field is kept
// inside its documented closed range by Normalize; a Settings value
// that has passed through Normalize is always safe to play with.
type Settings struct {
	Rounds                  int `json:"rounds"`
	QuestionsPerRound       int `json:"questionsPerRound"`
	SecondsBetweenQuestions int `json:"secondsBetweenQuestions"`
	QuestionDurationSeconds int `json:"questionDurationSeconds"`
}

// DefaultSettings returns the configuration a fresh lobby starts with.
func DefaultSettings() Settings {
	return Settings{
		Rounds:                  2,
		QuestionsPerRound:       5,
		SecondsBetweenQuestions: 5,
		QuestionDurationSeconds: 20,
	}
}

// Normalize clamps every field into range, substituting the default for
// non-positive values. Idempotent: normalizing twice yields the same
// result.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	s.Rounds = clamp(orDefault(s.Rounds, def.Rounds), 1, 10)
	s.QuestionsPerRound = clamp(orDefault(s.QuestionsPerRound, def.QuestionsPerRound), 3, 20)
	s.SecondsBetweenQuestions = clamp(orDefault(s.SecondsBetweenQuestions, def.SecondsBetweenQuestions), 2, 20)
	s.QuestionDurationSeconds = clamp(orDefault(s.QuestionDurationSeconds, def.QuestionDurationSeconds), 8, 40)
	return s
}

// SettingsFromPayload builds a valid Settings from an arbitrary decoded
// JSON object. Missing or non-numeric fields fall back to defaults;
// everything is clamped. It never fails, whatever the payload contains.
func SettingsFromPayload(payload map[string]interface{}) Settings {
	s := Settings{
		Rounds:                  intField(payload, "rounds"),
		QuestionsPerRound:       intField(payload, "questionsPerRound"),
		SecondsBetweenQuestions: intField(payload, "secondsBetweenQuestions"),
		QuestionDurationSeconds: intField(payload, "questionDurationSeconds"),
	}
	return s.Normalize()
}

// intField coerces a decoded JSON value to int, returning 0 (meaning
// "use the default") when absent or not a number.
func intField(payload map[string]interface{}, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
