// Package game holds the in-memory trivia session core: the per-lobby
// state machine, its registry, and settings normalization. A lobby
// lives exactly as long as it has players; nothing here touches disk.
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avhall/quizdash/internal/models"
	"github.com/avhall/quizdash/internal/trivia"
)

// Phase is the lobby state machine's current state. Values are the
// wire strings sent in lobbyState broadcasts.
type Phase string

const (
	PhaseLobby            Phase = "lobby"
	PhaseLoading          Phase = "loading"
	PhaseQuestion         Phase = "question"
	PhaseBetweenQuestions Phase = "betweenQuestions"
	PhaseRoundBreak       Phase = "roundBreak"
	PhaseEnded            Phase = "ended"
)

var (
	ErrLobbyNotFound      = errors.New("lobby not found")
	ErrNotHost            = errors.New("only the host may do that")
	ErrInvalidPhase       = errors.New("operation not valid in the current phase")
	ErrQuestionLoadFailed = errors.New("could not load questions")
)

// BroadcastFunc delivers an event to every member of the lobby's room.
// DirectFunc delivers to a single connection. Both are fire-and-forget
// and must never block; the transport layer injects them.
type (
	BroadcastFunc func(event string, payload map[string]interface{})
	DirectFunc    func(playerID uuid.UUID, event string, payload map[string]interface{})
)

// Lobby is one trivia session: its players, settings, question sets,
// and timers. All mutation goes through methods that hold Mu, including
// timer firings, so state observed under the lock is always consistent.
type Lobby struct {
	Code     string
	HostID   uuid.UUID
	Phase    Phase
	Settings Settings
	Players  map[uuid.UUID]*models.Player

	// Round is 1-based while a game is running, 0 before the first
	// round. QuestionIndex is -1 before the first question of a round.
	Round         int
	QuestionIndex int

	roundQuestions [][]models.Question
	active         *models.Question
	answers        map[uuid.UUID]string

	// timer is the single armed timer (question expiry or intermission);
	// timerGen is bumped on every cancel or re-arm so a stale AfterFunc
	// that already fired can detect it was superseded and no-op.
	timer    *time.Timer
	timerGen uint64

	joinSeq int

	// tick scales configured seconds into real durations. Production
	// uses one second; tests shrink it to run timer flows quickly.
	tick time.Duration

	BroadcastFn BroadcastFunc
	DirectFn    DirectFunc

	// OnEmpty is invoked (outside the lock) when the last player leaves,
	// typically wired to LobbyStore.DeleteLobby.
	OnEmpty func(code string)

	Mu sync.Mutex
}

// NewLobby creates a lobby in the Lobby phase with host as its sole
// player.
func NewLobby(code string, host *models.Player, settings Settings) *Lobby {
	host.JoinSeq = 0
	return &Lobby{
		Code:          code,
		HostID:        host.ID,
		Phase:         PhaseLobby,
		Settings:      settings.Normalize(),
		Players:       map[uuid.UUID]*models.Player{host.ID: host},
		QuestionIndex: -1,
		answers:       make(map[uuid.UUID]string),
		joinSeq:       1,
		tick:          time.Second,
	}
}

// Join adds a player. Joining is allowed in any phase; a mid-game
// joiner starts at score 0 and spectates until the next question
// broadcast. The new player gets a direct state snapshot and the room
// gets an updated lobbyState.
func (l *Lobby) Join(p *models.Player) {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	p.JoinSeq = l.joinSeq
	l.joinSeq++
	p.Score = 0
	l.Players[p.ID] = p
	if l.HostID == uuid.Nil {
		l.HostID = p.ID
	}

	logrus.WithFields(logrus.Fields{"lobby": l.Code, "player": p.ID, "name": p.Name}).Info("player joined")

	state := l.statePayloadUnsafe()
	if l.DirectFn != nil {
		l.DirectFn(p.ID, "lobbyState", state)
	}
	l.broadcastUnsafe("lobbyState", state)
}

// BroadcastState pushes a fresh lobbyState snapshot to the room. The
// transport layer calls this once after wiring a new lobby's gateway.
func (l *Lobby) BroadcastState() {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	l.broadcastUnsafe("lobbyState", l.statePayloadUnsafe())
}

// UpdateSettings replaces the lobby settings with a normalized version
// of the proposed payload. Host only, Lobby phase only.
func (l *Lobby) UpdateSettings(playerID uuid.UUID, proposed map[string]interface{}) error {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	if playerID != l.HostID {
		return ErrNotHost
	}
	if l.Phase != PhaseLobby {
		return ErrInvalidPhase
	}
	l.Settings = SettingsFromPayload(proposed)
	l.broadcastUnsafe("lobbyState", l.statePayloadUnsafe())
	return nil
}

// StartGame loads one question batch per round and begins round 1.
// Host only, from the Lobby or Ended phase. The lobby sits in Loading
// for the whole fetch window; the lock is released during the network
// calls so other operations observe that phase. On loader failure the
// phase rolls back to Lobby and ErrQuestionLoadFailed is returned.
func (l *Lobby) StartGame(ctx context.Context, playerID uuid.UUID, src trivia.Source) error {
	l.Mu.Lock()
	if playerID != l.HostID {
		l.Mu.Unlock()
		return ErrNotHost
	}
	if l.Phase != PhaseLobby && l.Phase != PhaseEnded {
		l.Mu.Unlock()
		return ErrInvalidPhase
	}
	l.cancelTimerUnsafe()
	l.Phase = PhaseLoading
	settings := l.Settings
	l.broadcastUnsafe("lobbyState", l.statePayloadUnsafe())
	l.Mu.Unlock()

	batches := make([][]models.Question, 0, settings.Rounds)
	var loadErr error
	for i := 0; i < settings.Rounds; i++ {
		batch, err := src.Fetch(ctx, settings.QuestionsPerRound)
		if err != nil {
			loadErr = err
			break
		}
		batches = append(batches, batch)
	}

	l.Mu.Lock()
	defer l.Mu.Unlock()

	// The lobby may have been evicted, or drained of players, while we
	// were fetching. Leave it alone in that case.
	if l.Phase != PhaseLoading || len(l.Players) == 0 {
		return nil
	}

	if loadErr != nil {
		logrus.WithFields(logrus.Fields{"lobby": l.Code, "error": loadErr}).Warn("question load failed, reverting to lobby")
		l.Phase = PhaseLobby
		l.broadcastUnsafe("lobbyState", l.statePayloadUnsafe())
		return ErrQuestionLoadFailed
	}

	l.roundQuestions = batches
	for _, p := range l.Players {
		p.Score = 0
	}
	l.Round = 0
	l.startRoundUnsafe()
	return nil
}

// SubmitAnswer records a player's choice for the active question. The
// first submission wins; repeats, submissions outside the Question
// phase, and submissions from non-players are all silently ignored.
// It never fails.
func (l *Lobby) SubmitAnswer(playerID uuid.UUID, answer string) {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	if l.Phase != PhaseQuestion || l.active == nil {
		return
	}
	if _, ok := l.Players[playerID]; !ok {
		return
	}
	if _, answered := l.answers[playerID]; answered {
		return
	}
	l.answers[playerID] = answer
}

// ContinueAfterBreak advances past a round break: into the next round,
// or to the final leaderboard when all rounds are played. Host only.
// An Ended lobby stays joinable and the host may StartGame again.
func (l *Lobby) ContinueAfterBreak(playerID uuid.UUID) error {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	if playerID != l.HostID {
		return ErrNotHost
	}
	if l.Phase != PhaseRoundBreak {
		return ErrInvalidPhase
	}

	if l.Round >= l.Settings.Rounds {
		l.endGameUnsafe()
		return nil
	}
	l.startRoundUnsafe()
	return nil
}

// RemovePlayer handles a departure or disconnect. If the host leaves,
// the remaining player with the lowest join sequence is promoted, so
// promotion is reproducible. When the last player leaves, timers are
// cancelled and OnEmpty fires (outside the lock). Never fails.
func (l *Lobby) RemovePlayer(playerID uuid.UUID) {
	l.Mu.Lock()

	if _, ok := l.Players[playerID]; !ok {
		l.Mu.Unlock()
		return
	}
	delete(l.Players, playerID)
	delete(l.answers, playerID)

	if l.HostID == playerID {
		l.HostID = uuid.Nil
		seq := -1
		for id, p := range l.Players {
			if seq == -1 || p.JoinSeq < seq {
				seq = p.JoinSeq
				l.HostID = id
			}
		}
		if l.HostID != uuid.Nil {
			logrus.WithFields(logrus.Fields{"lobby": l.Code, "host": l.HostID}).Info("host migrated")
		}
	}

	if len(l.Players) == 0 {
		l.cancelTimerUnsafe()
		onEmpty := l.OnEmpty
		l.Mu.Unlock()
		if onEmpty != nil {
			onEmpty(l.Code)
		}
		return
	}

	l.broadcastUnsafe("lobbyState", l.statePayloadUnsafe())
	l.Mu.Unlock()
}

// startRoundUnsafe begins the next round. Lock held.
func (l *Lobby) startRoundUnsafe() {
	l.Round++
	l.QuestionIndex = -1
	l.advanceQuestionUnsafe()
}

// advanceQuestionUnsafe moves to the next question of the current
// round, or into the round break when the round is exhausted. Lock
// held; reached from StartGame, ContinueAfterBreak, and the
// intermission timer.
func (l *Lobby) advanceQuestionUnsafe() {
	l.cancelTimerUnsafe()
	l.QuestionIndex++

	questions := l.roundQuestions[l.Round-1]
	if l.QuestionIndex >= l.Settings.QuestionsPerRound || l.QuestionIndex >= len(questions) {
		l.active = nil
		l.Phase = PhaseRoundBreak
		l.broadcastUnsafe("roundBreak", map[string]interface{}{
			"round":       l.Round,
			"totalRounds": l.Settings.Rounds,
			"leaderboard": models.Leaderboard(l.Players),
		})
		return
	}

	q := &questions[l.QuestionIndex]
	l.active = q
	l.answers = make(map[uuid.UUID]string)
	l.Phase = PhaseQuestion

	duration := l.scaled(l.Settings.QuestionDurationSeconds)
	expiresAt := time.Now().Add(duration)

	l.broadcastUnsafe("questionStarted", map[string]interface{}{
		"questionNumber": l.QuestionIndex + 1,
		"totalQuestions": l.Settings.QuestionsPerRound,
		"round":          l.Round,
		"totalRounds":    l.Settings.Rounds,
		"expiresAt":      expiresAt.UnixMilli(),
		"question":       q.Public(),
	})

	l.armTimerUnsafe(duration, l.finishQuestionUnsafe)
}

// finishQuestionUnsafe scores the active question and schedules the
// next advance. Lock held. Idempotent: if the question was already
// resolved (or the lobby moved on), it is a no-op.
func (l *Lobby) finishQuestionUnsafe() {
	if l.Phase != PhaseQuestion || l.active == nil {
		return
	}
	l.cancelTimerUnsafe()

	for playerID, answer := range l.answers {
		if answer != l.active.CorrectAnswer {
			continue
		}
		if p, ok := l.Players[playerID]; ok {
			p.Score++
		}
	}

	correct := l.active.CorrectAnswer
	l.active = nil
	l.Phase = PhaseBetweenQuestions

	l.broadcastUnsafe("questionEnded", map[string]interface{}{
		"correctAnswer":  correct,
		"leaderboard":    models.Leaderboard(l.Players),
		"nextQuestionIn": l.Settings.SecondsBetweenQuestions,
	})

	l.armTimerUnsafe(l.scaled(l.Settings.SecondsBetweenQuestions), l.advanceQuestionUnsafe)
}

// endGameUnsafe moves to the terminal Ended phase and publishes the
// final leaderboard. Lock held.
func (l *Lobby) endGameUnsafe() {
	l.cancelTimerUnsafe()
	l.active = nil
	l.Phase = PhaseEnded
	l.broadcastUnsafe("gameEnded", map[string]interface{}{
		"leaderboard": models.Leaderboard(l.Players),
	})
	l.broadcastUnsafe("lobbyState", l.statePayloadUnsafe())
}

// armTimerUnsafe schedules fn after d. Lock held. The generation
// captured here is compared when the timer fires: any cancel or re-arm
// in between makes the firing a no-op.
func (l *Lobby) armTimerUnsafe(d time.Duration, fn func()) {
	l.timerGen++
	gen := l.timerGen
	l.timer = time.AfterFunc(d, func() {
		l.Mu.Lock()
		defer l.Mu.Unlock()
		if l.timerGen != gen {
			return
		}
		l.timer = nil
		fn()
	})
}

// cancelTimerUnsafe stops any armed timer and invalidates in-flight
// firings. Lock held.
func (l *Lobby) cancelTimerUnsafe() {
	l.timerGen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Lobby) scaled(seconds int) time.Duration {
	return time.Duration(seconds) * l.tick
}

// statePayloadUnsafe builds the full lobbyState snapshot. Lock held.
func (l *Lobby) statePayloadUnsafe() map[string]interface{} {
	var hostID interface{}
	if l.HostID != uuid.Nil {
		hostID = l.HostID.String()
	}
	return map[string]interface{}{
		"code":     l.Code,
		"hostId":   hostID,
		"status":   string(l.Phase),
		"settings": l.Settings,
		"players":  models.Leaderboard(l.Players),
		"round":    l.Round,
	}
}

// broadcastUnsafe emits to the room if a gateway is attached. Lock
// held; the gateway write path is non-blocking.
func (l *Lobby) broadcastUnsafe(event string, payload map[string]interface{}) {
	if l.BroadcastFn != nil {
		l.BroadcastFn(event, payload)
	}
}
