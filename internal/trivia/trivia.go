// Package trivia fetches batches of multiple-choice questions from an
// external question bank (Open Trivia DB by default).
package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/avhall/quizdash/internal/models"
)

var (
	// ErrSourceUnavailable indicates the question service could not be
	// reached or returned a non-success status.
	ErrSourceUnavailable = errors.New("question source unavailable")
	// ErrEmptyResult indicates the service responded but had no
	// questions to offer.
	ErrEmptyResult = errors.New("question source returned no questions")
)

// Source produces one ordered batch of questions per call. The lobby
// requests one batch per round.
type Source interface {
	Fetch(ctx context.Context, count int) ([]models.Question, error)
}

const defaultBaseURL = "https://opentdb.com"

// Client is the HTTP-backed Source implementation.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against TRIVIA_API_URL or the public
// Open Trivia DB endpoint.
func NewClient() *Client {
	base := os.Getenv("TRIVIA_API_URL")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// rawQuestion mirrors the Open Trivia DB response schema.
type rawQuestion struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []rawQuestion `json:"results"`
}

// Fetch retrieves count questions and prepares them for play. Option
// order is shuffled here, once; the broadcast layer must never reorder.
func (c *Client) Fetch(ctx context.Context, count int) ([]models.Question, error) {
	url := fmt.Sprintf("%s/api.php?amount=%d&type=multiple", c.baseURL, count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSourceUnavailable, err)
	}
	if len(body.Results) == 0 {
		return nil, ErrEmptyResult
	}

	questions := make([]models.Question, 0, len(body.Results))
	for _, raw := range body.Results {
		questions = append(questions, Prepare(raw.Question, raw.CorrectAnswer, raw.IncorrectAnswers))
	}
	return questions, nil
}

// Prepare assembles a playable question, fixing a shuffled option order
// that embeds the correct answer among the decoys.
func Prepare(prompt, correct string, incorrect []string) models.Question {
	options := make([]string, 0, len(incorrect)+1)
	options = append(options, correct)
	options = append(options, incorrect...)
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return models.Question{
		ID:            uuid.New(),
		Prompt:        prompt,
		Options:       options,
		CorrectAnswer: correct,
	}
}
