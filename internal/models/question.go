package models

import "github.com/google/uuid"

// Question is a single multiple-choice trivia question. Options holds
// the correct answer and the incorrect ones in an order that is
// randomized once when the question is built and fixed thereafter, so
// every player sees the same ordering.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Prompt        string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"-"`
}

// Public returns the broadcast payload for a live question with the
// correct answer withheld.
func (q *Question) Public() map[string]interface{} {
	return map[string]interface{}{
		"id":       q.ID.String(),
		"question": q.Prompt,
		"options":  q.Options,
	}
}
