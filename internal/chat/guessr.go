package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Round actions claimed by the guessr handler.
const (
	ActionGuessrStart  = "guessr:start"
	ActionGuessrSubmit = "guessr:submit"

	actionGuessrProgress = "guessr:progress"
	actionGuessrCancel   = "guessr:cancel"
	actionGuessrReveal   = "guessr:reveal"
)

// sourceEntryName labels the true series in the reveal payload.
const sourceEntryName = "Source"

// Round is the state of one live guessr round. The round itself is mutable
// (answers accumulate under its lock); its lifecycle is controlled entirely
// by CAS transitions on the handler's cell.
type Round struct {
	starter *Participant
	content *QuestionContent

	mu      sync.RWMutex
	answers map[string]roundAnswer
}

// roundAnswer captures the submitter's identity at submit time. The live
// participant record may be renamed from another goroutine while a deferred
// check publishes, so the round never holds shared pointers.
type roundAnswer struct {
	userID   string
	nickname string
	series   json.RawMessage
}

func newRound(starter *Participant, content *QuestionContent) *Round {
	sender := *starter
	return &Round{
		starter: &sender,
		content: content,
		answers: make(map[string]roundAnswer),
	}
}

// setAnswer records or overwrites p's series. A participant has one logical
// answer regardless of how many tabs they submit from.
func (r *Round) setAnswer(p *Participant, series json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[p.ID] = roundAnswer{userID: p.UserID, nickname: p.Nickname, series: series}
}

func (r *Round) snapshot() map[string]roundAnswer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]roundAnswer, len(r.answers))
	for id, a := range r.answers {
		out[id] = a
	}
	return out
}

// GuessrHandler runs the chart-guessing minigame for one room. At most one
// round is live at a time; the cell only changes hands via compare-and-swap,
// so concurrent starts, submits, and deferred re-checks cannot double-start
// or double-reveal.
type GuessrHandler struct {
	room      *ActiveRoom
	questions QuestionStore
	scheduler *Scheduler
	logger    *zap.Logger
	opts      Options

	state atomic.Pointer[Round]
}

// NewGuessrHandler constructs the guessr stage for room.
func NewGuessrHandler(room *ActiveRoom, questions QuestionStore, scheduler *Scheduler, logger *zap.Logger, opts Options) *GuessrHandler {
	return &GuessrHandler{
		room:      room,
		questions: questions,
		scheduler: scheduler,
		logger:    logger.With(zap.String("conversation", room.Room().ID)),
		opts:      opts,
	}
}

// OnMessage claims only the guessr actions; everything else flows past.
func (h *GuessrHandler) OnMessage(ctx context.Context, p *Participant, action string, data json.RawMessage) (bool, error) {
	switch action {
	case ActionGuessrStart:
		return true, h.start(ctx, p)
	case ActionGuessrSubmit:
		return true, h.submit(ctx, p, data)
	default:
		return false, nil
	}
}

// OnParticipantEnter is a no-op; a newly arrived participant simply raises
// the bar for the next progress check.
func (h *GuessrHandler) OnParticipantEnter(p *Participant) {}

// OnParticipantExit schedules a progress re-check shortly after the leeway
// window closes, so a round waiting only on the departed participant can
// finish.
func (h *GuessrHandler) OnParticipantExit(p *Participant) {
	if h.state.Load() == nil {
		return
	}
	h.scheduler.Schedule(h.opts.ExitRecheckDelay, func() {
		if err := h.checkProgress(context.Background()); err != nil {
			h.logger.Warn("deferred round check failed", zap.Error(err))
		}
	})
}

// start draws a question and installs a new round. A live round rejects the
// start without touching any state.
func (h *GuessrHandler) start(ctx context.Context, p *Participant) error {
	if h.state.Load() != nil {
		return ErrRoundInProgress
	}
	q, err := h.questions.Random(ctx, h.opts.QuestionCategory)
	if err != nil {
		return fmt.Errorf("draw question: %w", err)
	}
	content, err := q.Content()
	if err != nil {
		return err
	}
	round := newRound(p, content)
	if !h.state.CompareAndSwap(nil, round) {
		return ErrRoundInProgress
	}

	stripped := content.Stripped()
	stripped.Extensions["type"] = q.Category
	payload, err := json.Marshal(stripped)
	if err != nil {
		return fmt.Errorf("encode question: %w", err)
	}
	if err := h.room.Publish(ctx, p, ActionGuessrStart, payload); err != nil {
		return err
	}
	return h.checkProgress(ctx)
}

type submitArgs struct {
	Series json.RawMessage `json:"series"`
}

// submit records p's answer for the live round. A submission with no live
// round gets a cancel notice so stale clients reset.
func (h *GuessrHandler) submit(ctx context.Context, p *Participant, data json.RawMessage) error {
	round := h.state.Load()
	if round == nil {
		return h.publishCancel(ctx, p)
	}
	// An empty series list is still a logical answer; only a frame without
	// readable series data is rejected.
	var args submitArgs
	if err := json.Unmarshal(data, &args); err != nil || args.Series == nil {
		return Validationf("could not read series data")
	}
	round.setAnswer(p, args.Series)
	return h.checkProgress(ctx)
}

// checkProgress advances the live round: it either reports progress, cancels
// a round nobody is left to answer, or reveals. Cancel and reveal clear the
// cell via CAS first, so racing checks resolve to exactly one outcome.
func (h *GuessrHandler) checkProgress(ctx context.Context) error {
	round := h.state.Load()
	if round == nil {
		return nil
	}
	active := h.room.ActiveParticipants(h.opts.Leeway)
	answers := round.snapshot()

	answered := 0
	for id := range answers {
		if _, ok := active[id]; ok {
			answered++
		}
	}
	// Departed submitters still count toward the total so their answers
	// appear in the reveal.
	total := len(active) + len(answers) - answered

	if answered < len(active) {
		ids := make([]string, 0, len(answers))
		for _, a := range answers {
			ids = append(ids, a.userID)
		}
		payload, err := json.Marshal(map[string]any{
			"progress":         len(answers),
			"total":            total,
			"submittedUserIds": ids,
		})
		if err != nil {
			return fmt.Errorf("encode progress: %w", err)
		}
		return h.room.Publish(ctx, round.starter, actionGuessrProgress, payload)
	}

	// Nobody left inside the leeway window means nobody to reveal to, even
	// when answers were collected.
	if len(active) == 0 {
		if h.state.CompareAndSwap(round, nil) {
			return h.publishCancel(ctx, round.starter)
		}
		return nil
	}

	if !h.state.CompareAndSwap(round, nil) {
		return nil
	}
	return h.publishReveal(ctx, round, answers)
}

type revealEntry struct {
	Series json.RawMessage `json:"series"`
	Name   string          `json:"name"`
	UserID string          `json:"userId,omitempty"`
}

func (h *GuessrHandler) publishReveal(ctx context.Context, round *Round, answers map[string]roundAnswer) error {
	entries := make([]revealEntry, 0, len(answers)+1)
	for _, a := range answers {
		entries = append(entries, revealEntry{
			Series: a.series,
			Name:   a.nickname,
			UserID: a.userID,
		})
	}
	source, err := json.Marshal(round.content.SourceSeries())
	if err != nil {
		return fmt.Errorf("encode source series: %w", err)
	}
	entries = append(entries, revealEntry{Series: source, Name: sourceEntryName})

	payload, err := json.Marshal(map[string]any{"result": entries})
	if err != nil {
		return fmt.Errorf("encode reveal: %w", err)
	}
	return h.room.Publish(ctx, round.starter, actionGuessrReveal, payload)
}

func (h *GuessrHandler) publishCancel(ctx context.Context, sender *Participant) error {
	return h.room.Publish(ctx, sender, actionGuessrCancel, json.RawMessage("null"))
}
