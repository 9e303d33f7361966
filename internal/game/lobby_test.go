package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avhall/quizdash/internal/models"
)

// mockGateway records emitted events instead of sending them over WS.
type mockGateway struct {
	mu     sync.Mutex
	events []recordedEvent
	direct map[uuid.UUID][]recordedEvent
}

type recordedEvent struct {
	event   string
	payload map[string]interface{}
}

func newMockGateway() *mockGateway {
	return &mockGateway{direct: make(map[uuid.UUID][]recordedEvent)}
}

func (m *mockGateway) broadcastFn(event string, payload map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{event: event, payload: payload})
}

func (m *mockGateway) directFn(playerID uuid.UUID, event string, payload map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direct[playerID] = append(m.direct[playerID], recordedEvent{event: event, payload: payload})
}

func (m *mockGateway) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockGateway) named(event string) []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedEvent
	for _, ev := range m.events {
		if ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

// stubSource serves deterministic questions where "right" is always
// the correct answer.
type stubSource struct {
	err   error
	calls int
}

func (s *stubSource) Fetch(ctx context.Context, count int) ([]models.Question, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.calls++
	questions := make([]models.Question, count)
	for i := range questions {
		questions[i] = models.Question{
			ID:            uuid.New(),
			Prompt:        fmt.Sprintf("round %d question %d", s.calls, i+1),
			Options:       []string{"wrong1", "right", "wrong2", "wrong3"},
			CorrectAnswer: "right",
		}
	}
	return questions, nil
}

// fastSettings keeps timer-driven tests quick once scaled by the test
// tick (10ms per configured second).
func fastSettings() Settings {
	return Settings{Rounds: 2, QuestionsPerRound: 3, SecondsBetweenQuestions: 2, QuestionDurationSeconds: 8}
}

func setupLobby(numPlayers int, settings Settings) (*Lobby, []*models.Player, *mockGateway) {
	mg := newMockGateway()
	host := &models.Player{ID: uuid.New(), Name: "Host"}
	l := NewLobby("ABCDE", host, settings)
	l.tick = 10 * time.Millisecond
	l.BroadcastFn = mg.broadcastFn
	l.DirectFn = mg.directFn

	players := []*models.Player{host}
	for i := 1; i < numPlayers; i++ {
		p := &models.Player{ID: uuid.New(), Name: fmt.Sprintf("Player%d", i)}
		l.Join(p)
		players = append(players, p)
	}
	return l, players, mg
}

func phaseOf(l *Lobby) Phase {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.Phase
}

func waitForPhase(t *testing.T, l *Lobby, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return phaseOf(l) == want },
		2*time.Second, 2*time.Millisecond, "expected phase %s", want)
}

func TestJoinBroadcastsAndSendsSnapshot(t *testing.T) {
	l, players, mg := setupLobby(2, fastSettings())

	assert.Len(t, mg.named("lobbyState"), 1)
	snapshots := mg.direct[players[1].ID]
	require.Len(t, snapshots, 1)
	assert.Equal(t, "lobbyState", snapshots[0].event)
	assert.Equal(t, l.Code, snapshots[0].payload["code"])
}

func TestHostPromotionIsDeterministic(t *testing.T) {
	l, players, _ := setupLobby(3, fastSettings())
	host, second, third := players[0], players[1], players[2]

	l.RemovePlayer(host.ID)
	l.Mu.Lock()
	assert.Equal(t, second.ID, l.HostID, "earliest remaining joiner becomes host")
	l.Mu.Unlock()

	l.RemovePlayer(second.ID)
	l.Mu.Lock()
	assert.Equal(t, third.ID, l.HostID)
	l.Mu.Unlock()
}

func TestLastPlayerLeavingFiresOnEmpty(t *testing.T) {
	l, players, _ := setupLobby(2, fastSettings())

	evicted := make(chan string, 1)
	l.OnEmpty = func(code string) { evicted <- code }

	l.RemovePlayer(players[0].ID)
	l.RemovePlayer(players[1].ID)

	select {
	case code := <-evicted:
		assert.Equal(t, l.Code, code)
	default:
		t.Fatal("OnEmpty was not called")
	}

	l.Mu.Lock()
	assert.Nil(t, l.timer, "timers must be cancelled on eviction")
	l.Mu.Unlock()
}

func TestRemoveUnknownPlayerIsNoop(t *testing.T) {
	l, _, mg := setupLobby(2, fastSettings())
	before := mg.count()
	l.RemovePlayer(uuid.New())
	assert.Equal(t, before, mg.count())
}

func TestUpdateSettingsRequiresHost(t *testing.T) {
	l, players, _ := setupLobby(2, fastSettings())

	err := l.UpdateSettings(players[1].ID, map[string]interface{}{"rounds": float64(5)})
	require.ErrorIs(t, err, ErrNotHost)

	l.Mu.Lock()
	assert.Equal(t, fastSettings(), l.Settings, "settings must be unchanged")
	l.Mu.Unlock()
}

func TestUpdateSettingsOnlyInLobbyPhase(t *testing.T) {
	l, players, _ := setupLobby(1, fastSettings())

	l.Mu.Lock()
	l.Phase = PhaseRoundBreak
	l.Mu.Unlock()

	err := l.UpdateSettings(players[0].ID, map[string]interface{}{"rounds": float64(5)})
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestUpdateSettingsNormalizesProposal(t *testing.T) {
	l, players, mg := setupLobby(1, fastSettings())

	err := l.UpdateSettings(players[0].ID, map[string]interface{}{"rounds": float64(99), "questionsPerRound": "garbage"})
	require.NoError(t, err)

	l.Mu.Lock()
	assert.Equal(t, 10, l.Settings.Rounds)
	assert.Equal(t, DefaultSettings().QuestionsPerRound, l.Settings.QuestionsPerRound)
	l.Mu.Unlock()

	states := mg.named("lobbyState")
	require.NotEmpty(t, states)
}

func TestStartGameRequiresHost(t *testing.T) {
	l, players, _ := setupLobby(2, fastSettings())
	err := l.StartGame(context.Background(), players[1].ID, &stubSource{})
	require.ErrorIs(t, err, ErrNotHost)
	assert.Equal(t, PhaseLobby, phaseOf(l))
}

func TestStartGameRejectedMidGame(t *testing.T) {
	l, players, _ := setupLobby(1, fastSettings())
	require.NoError(t, l.StartGame(context.Background(), players[0].ID, &stubSource{}))
	require.Equal(t, PhaseQuestion, phaseOf(l))

	err := l.StartGame(context.Background(), players[0].ID, &stubSource{})
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestStartGameLoaderFailureRollsBack(t *testing.T) {
	l, players, mg := setupLobby(2, fastSettings())

	err := l.StartGame(context.Background(), players[0].ID, &stubSource{err: fmt.Errorf("api down")})
	require.ErrorIs(t, err, ErrQuestionLoadFailed)
	assert.Equal(t, PhaseLobby, phaseOf(l))

	states := mg.named("lobbyState")
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, string(PhaseLoading), states[len(states)-2].payload["status"])
	assert.Equal(t, string(PhaseLobby), states[len(states)-1].payload["status"])
}

func TestQuestionFlowScoresFirstAnswer(t *testing.T) {
	l, players, mg := setupLobby(2, fastSettings())
	host, p := players[0], players[1]

	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))

	l.Mu.Lock()
	assert.Equal(t, PhaseQuestion, l.Phase)
	assert.Equal(t, 1, l.Round)
	assert.Equal(t, 0, l.QuestionIndex)
	require.NotNil(t, l.active)
	l.Mu.Unlock()

	started := mg.named("questionStarted")
	require.Len(t, started, 1)
	q := started[0].payload["question"].(map[string]interface{})
	assert.NotContains(t, q, "correctAnswer", "broadcast must withhold the answer")

	// P answers correctly, host answers wrong, P tries to change answer.
	l.SubmitAnswer(p.ID, "right")
	l.SubmitAnswer(host.ID, "wrong1")
	l.SubmitAnswer(p.ID, "wrong2")

	waitForPhase(t, l, PhaseBetweenQuestions)

	l.Mu.Lock()
	assert.Equal(t, 1, p.Score, "first recorded answer wins")
	assert.Equal(t, 0, host.Score)
	l.Mu.Unlock()

	ended := mg.named("questionEnded")
	require.Len(t, ended, 1)
	assert.Equal(t, "right", ended[0].payload["correctAnswer"])
	assert.Equal(t, fastSettings().SecondsBetweenQuestions, ended[0].payload["nextQuestionIn"])

	// After the pause, the next question starts.
	waitForPhase(t, l, PhaseQuestion)
	l.Mu.Lock()
	assert.Equal(t, 1, l.QuestionIndex)
	l.Mu.Unlock()
}

func TestAnswerAfterResolveHasNoEffect(t *testing.T) {
	// A long intermission keeps the BetweenQuestions window open while
	// the late answer is submitted and inspected.
	settings := Settings{Rounds: 1, QuestionsPerRound: 3, SecondsBetweenQuestions: 20, QuestionDurationSeconds: 8}
	l, players, _ := setupLobby(2, settings)
	host, p := players[0], players[1]

	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))
	waitForPhase(t, l, PhaseBetweenQuestions)

	l.SubmitAnswer(p.ID, "right")

	l.Mu.Lock()
	assert.Equal(t, 0, p.Score, "answers after expiry never score")
	_, recorded := l.answers[p.ID]
	assert.False(t, recorded)
	l.Mu.Unlock()
}

func TestHostDisconnectMidQuestionKeepsGameRunning(t *testing.T) {
	l, players, _ := setupLobby(2, fastSettings())
	host, p := players[0], players[1]

	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))
	require.Equal(t, PhaseQuestion, phaseOf(l))

	l.RemovePlayer(host.ID)

	l.Mu.Lock()
	assert.Equal(t, p.ID, l.HostID, "remaining player is promoted")
	assert.Equal(t, PhaseQuestion, l.Phase, "active question is unaffected")
	assert.NotNil(t, l.active)
	assert.NotNil(t, l.timer, "question timer keeps running")
	l.Mu.Unlock()

	// The promoted host can drive the game: wait out the round, then
	// continue past the break.
	waitForPhase(t, l, PhaseRoundBreak)
	require.NoError(t, l.ContinueAfterBreak(p.ID))
	waitForPhase(t, l, PhaseQuestion)
	l.Mu.Lock()
	assert.Equal(t, 2, l.Round)
	l.Mu.Unlock()
}

func TestContinueAfterBreakGuards(t *testing.T) {
	l, players, _ := setupLobby(2, fastSettings())
	host, p := players[0], players[1]

	require.ErrorIs(t, l.ContinueAfterBreak(host.ID), ErrInvalidPhase, "no break to continue from yet")

	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))
	waitForPhase(t, l, PhaseRoundBreak)

	require.ErrorIs(t, l.ContinueAfterBreak(p.ID), ErrNotHost)
}

func TestFullGameReachesEndedWithAllScoringOpportunities(t *testing.T) {
	settings := Settings{Rounds: 2, QuestionsPerRound: 3, SecondsBetweenQuestions: 2, QuestionDurationSeconds: 8}
	l, players, mg := setupLobby(2, settings)
	host, p := players[0], players[1]

	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))

	for round := 1; round <= settings.Rounds; round++ {
		for q := 0; q < settings.QuestionsPerRound; q++ {
			require.Eventually(t, func() bool {
				l.Mu.Lock()
				defer l.Mu.Unlock()
				return l.Phase == PhaseQuestion && l.Round == round && l.QuestionIndex == q
			}, 2*time.Second, 2*time.Millisecond, "round %d question %d never became active", round, q)
			l.SubmitAnswer(p.ID, "right")
			waitForPhase(t, l, PhaseBetweenQuestions)
		}
		waitForPhase(t, l, PhaseRoundBreak)
		require.NoError(t, l.ContinueAfterBreak(host.ID))
	}

	waitForPhase(t, l, PhaseEnded)

	l.Mu.Lock()
	assert.Equal(t, settings.Rounds*settings.QuestionsPerRound, p.Score,
		"every question was a scoring opportunity")
	assert.Nil(t, l.timer)
	l.Mu.Unlock()

	finals := mg.named("gameEnded")
	require.Len(t, finals, 1)
	board := finals[0].payload["leaderboard"].([]models.LeaderboardEntry)
	require.NotEmpty(t, board)
	assert.Equal(t, p.Name, board[0].Name, "top scorer leads the final leaderboard")

	// The lobby is still alive: a restart is allowed from Ended.
	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))
	l.Mu.Lock()
	assert.Equal(t, 0, p.Score, "scores reset on restart")
	assert.Equal(t, 1, l.Round)
	l.Mu.Unlock()
}

func TestLateJoinerSpectatesAtZero(t *testing.T) {
	l, players, _ := setupLobby(1, fastSettings())
	host := players[0]

	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))
	require.Equal(t, PhaseQuestion, phaseOf(l))

	late := &models.Player{ID: uuid.New(), Name: "Latecomer", Score: 42}
	l.Join(late)

	l.Mu.Lock()
	assert.Equal(t, 0, late.Score, "late joiners start from zero")
	assert.Equal(t, PhaseQuestion, l.Phase, "joining does not disturb the question")
	l.Mu.Unlock()

	// They may still answer the in-flight question they can see.
	l.SubmitAnswer(late.ID, "right")
	waitForPhase(t, l, PhaseBetweenQuestions)
	l.Mu.Lock()
	assert.Equal(t, 1, late.Score)
	l.Mu.Unlock()
}

func TestEvictionMidQuestionSilencesStaleTimer(t *testing.T) {
	l, players, mg := setupLobby(2, fastSettings())
	host, p := players[0], players[1]

	require.NoError(t, l.StartGame(context.Background(), host.ID, &stubSource{}))
	require.Equal(t, PhaseQuestion, phaseOf(l))

	l.RemovePlayer(host.ID)
	l.RemovePlayer(p.ID)

	quiet := mg.count()
	time.Sleep(150 * time.Millisecond) // well past the scaled question duration
	assert.Equal(t, quiet, mg.count(), "no broadcasts after the lobby emptied")
}
