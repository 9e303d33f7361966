// Package names supplies display names: a remote generator with a
// static fallback pool, and a two-stage nickname sanitizer that prefers
// a remote profanity service but degrades to a local blocklist.
package names

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// MaxNameLength caps stored display names.
const MaxNameLength = 24

var fallbackNames = []string{
	"CleverOtter", "BrightPanda", "QuickFalcon", "MellowKoala",
	"BraveCoyote", "KindBadger", "CalmWren", "SunnyTurtle",
	"NeatLynx", "SwiftHeron", "GentleHawk", "CozyFinch",
}

// fallbackBlocklist backs the local profanity predicate when the remote
// service is unreachable.
var fallbackBlocklist = []string{"fuck", "shit", "bitch", "cunt", "dick"}

const (
	defaultNameAPIURL      = "https://apis.kahoot.it/namerator"
	defaultProfanityAPIURL = "https://www.purgomalum.com/service/containsprofanity"
)

// Generator produces and sanitizes display names. Generate never fails;
// every remote error path lands in a local fallback.
type Generator struct {
	nameURL      string
	profanityURL string
	http         *http.Client
}

func NewGenerator() *Generator {
	nameURL := os.Getenv("NAME_API_URL")
	if nameURL == "" {
		nameURL = defaultNameAPIURL
	}
	profanityURL := os.Getenv("PROFANITY_API_URL")
	if profanityURL == "" {
		profanityURL = defaultProfanityAPIURL
	}
	return &Generator{
		nameURL:      nameURL,
		profanityURL: profanityURL,
		http:         &http.Client{Timeout: 5 * time.Second},
	}
}

// Generate returns a friendly display name, from the remote name API
// when possible and the static pool otherwise.
func (g *Generator) Generate(ctx context.Context) string {
	name, err := g.fetchRemoteName(ctx)
	if err != nil {
		logrus.WithField("error", err).Debug("name API unavailable, using fallback pool")
		return fallbackNames[rand.Intn(len(fallbackNames))]
	}
	return name
}

// Sanitize turns a user-supplied nickname into an acceptable display
// name. Empty or profane input is replaced with a generated name; the
// profanity decision tries the remote service first and falls back to
// the local blocklist on any failure.
func (g *Generator) Sanitize(ctx context.Context, nickname string) string {
	trimmed := strings.TrimSpace(nickname)
	if trimmed == "" {
		return g.Generate(ctx)
	}

	flagged, err := g.checkProfanityRemote(ctx, trimmed)
	if err != nil {
		flagged = containsBlockedWord(trimmed)
	}
	if flagged {
		return g.Generate(ctx)
	}

	if len(trimmed) > MaxNameLength {
		trimmed = trimmed[:MaxNameLength]
	}
	return trimmed
}

func (g *Generator) fetchRemoteName(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.nameURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("name API status %d", resp.StatusCode)
	}

	// The namerator returns {"name": ["Adjective", "Animal"]} or a
	// plain string; accept both.
	var body struct {
		Name json.RawMessage `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	var parts []string
	if err := json.Unmarshal(body.Name, &parts); err == nil {
		return strings.Join(parts, " "), nil
	}
	var single string
	if err := json.Unmarshal(body.Name, &single); err == nil && single != "" {
		return single, nil
	}
	return "", errors.New("invalid name payload")
}

func (g *Generator) checkProfanityRemote(ctx context.Context, text string) (bool, error) {
	u := fmt.Sprintf("%s?text=%s", g.profanityURL, url.QueryEscape(text))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("profanity API status %d", resp.StatusCode)
	}

	verdict, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(verdict)) == "true", nil
}

func containsBlockedWord(name string) bool {
	lower := strings.ToLower(name)
	for _, word := range fallbackBlocklist {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
