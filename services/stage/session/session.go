// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session runs live improv sessions.
//
// A Session owns everything one player's scene needs: the transcript, the
// scene state, the player profile, the delivery queue with its consumer,
// the predicate cache, and the director. The Registry hands out sessions
// and routes connection-layer events to them.
//
// # Concurrency Model
//
// Each session is single-mutator. Scene state, profile, and transcript are
// written only by the turn task that currently owns the slot; admin reads
// go through Snapshot, which copies under a lock. A turn has two phases
// with different interruption rules:
//
//   - Awaiting the backend. A newer player turn supersedes this phase:
//     the pending generation is cancelled, its sequence token goes stale,
//     and its result is dropped on arrival. At most one generation is in
//     flight per session at any moment.
//
//   - Committing. Once a reply is accepted the turn mutates state: the
//     transcript grows, rules fire, endings are checked, the director
//     steps. This phase cannot be preempted; a player turn arriving while
//     it runs is rejected with ErrSessionBusy.
//
// Thread Safety: all exported methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/content"
	"github.com/ProsceniumAI/Proscenium/services/stage/datatypes"
	"github.com/ProsceniumAI/Proscenium/services/stage/delivery"
	"github.com/ProsceniumAI/Proscenium/services/stage/director"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
	"github.com/ProsceniumAI/Proscenium/services/stage/predicate"
	"github.com/ProsceniumAI/Proscenium/services/stage/profile"
	"github.com/ProsceniumAI/Proscenium/services/stage/sequencer"
)

// Session lifecycle errors.
var (
	// ErrSessionBusy rejects a turn while a previous turn is committing
	// its results. The connection layer forwards this as a busy signal.
	ErrSessionBusy = errors.New("session is busy")

	// ErrSessionClosed rejects operations on an ended session.
	ErrSessionClosed = errors.New("session is closed")
)

// saveTimeout bounds one profile checkpoint write.
const saveTimeout = 5 * time.Second

// archiveTimeout bounds the end-of-session archive call, summary
// generation included.
const archiveTimeout = 30 * time.Second

// SessionRecord is the bundle handed to an Archiver when a session ends.
type SessionRecord struct {
	SessionID  string
	PlayerID   string
	Scene      string
	StartedAt  time.Time
	EndedAt    time.Time
	Actions    int
	Transcript datatypes.Transcript
	Profile    *datatypes.PlayerProfile
}

// Archiver receives ended sessions for long-term storage. Implementations
// must tolerate being called once per session at most.
type Archiver interface {
	ArchiveSession(ctx context.Context, rec SessionRecord) error
}

// Turn outcome labels reported through the analytics sink.
const (
	TurnOutcomeDelivered  = "delivered"
	TurnOutcomeFailed     = "failed"
	TurnOutcomeSuperseded = "superseded"
)

// TurnEvent describes one finished turn task for analytics sinks.
type TurnEvent struct {
	SessionID  string
	PlayerID   string
	Scene      string
	Status     string
	Latency    time.Duration
	QueueDepth int
	Numbers    map[string]float64
}

// TurnSink consumes turn events. It is called outside the session's locks
// and must not block.
type TurnSink func(TurnEvent)

// Config tunes one session.
type Config struct {
	// TurnTimeout bounds a single reply generation.
	TurnTimeout time.Duration

	// PredicateTimeout bounds one predicate evaluation.
	PredicateTimeout time.Duration

	// TranscriptWindow is how many trailing transcript entries feed reply
	// prompts.
	TranscriptWindow int

	// PredicateWindow is how many trailing transcript entries predicates
	// see. Wider than the prompt window so latch conditions can refer to
	// things said a while ago.
	PredicateWindow int

	Delivery delivery.Config
	Director director.Config

	// Archiver, when set, receives the session record at teardown.
	Archiver Archiver

	// TurnSink, when set, receives one event per finished turn task.
	TurnSink TurnSink
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TurnTimeout:      20 * time.Second,
		PredicateTimeout: predicate.DefaultTimeout,
		TranscriptWindow: 12,
		PredicateWindow:  40,
		Delivery:         delivery.DefaultConfig(),
		Director:         director.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = d.TurnTimeout
	}
	if c.PredicateTimeout <= 0 {
		c.PredicateTimeout = d.PredicateTimeout
	}
	if c.TranscriptWindow <= 0 {
		c.TranscriptWindow = d.TranscriptWindow
	}
	if c.PredicateWindow <= 0 {
		c.PredicateWindow = d.PredicateWindow
	}
	return c
}

// Session is one live scene between a player and the stage.
type Session struct {
	ID        string
	PlayerID  string
	StartedAt time.Time

	cfg      Config
	backend  genai.Backend
	store    profile.Store
	pack     *content.Pack
	archiver Archiver
	sink     TurnSink

	seq        *sequencer.Sequencer
	gate       sequencer.Gate
	queue      *delivery.Queue
	consumer   *delivery.Consumer
	predicates *predicate.Cache
	director   *director.Director

	ctx          context.Context
	cancel       context.CancelFunc
	consumerDone chan struct{}

	// slotMu serializes turn admission against result acceptance and
	// teardown. It is held only for short critical sections, never across
	// a backend call.
	slotMu     sync.Mutex
	closed     bool
	superseder context.CancelFunc
	turns      sync.WaitGroup

	// stateMu guards the narrative state for Snapshot readers. Mutation
	// happens only on the turn task, which takes stateMu around each
	// write instant.
	stateMu     sync.Mutex
	scene       *datatypes.SceneState
	prof        *datatypes.PlayerProfile
	transcript  datatypes.Transcript
	actionCount int
	firedOnce   map[string]bool
}

// deps bundles everything the registry injects into a new session.
type deps struct {
	id        string
	playerID  string
	pack      *content.Pack
	profile   *datatypes.PlayerProfile
	backend   genai.Backend
	store     profile.Store
	transport delivery.Transport
	cfg       Config
	numbers   map[string]float64
	strings   map[string]string
}

// newSession assembles a session, starts its consumer, and delivers the
// scene's opening line.
func newSession(d deps) *Session {
	cfg := d.cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:           d.id,
		PlayerID:     d.playerID,
		StartedAt:    time.Now(),
		cfg:          cfg,
		backend:      d.backend,
		store:        d.store,
		pack:         d.pack,
		archiver:     cfg.Archiver,
		sink:         cfg.TurnSink,
		seq:          sequencer.New(),
		queue:        delivery.NewQueue(d.id, cfg.Delivery),
		predicates:   predicate.New(d.backend, cfg.PredicateTimeout),
		director:     director.New(d.backend, cfg.Director),
		ctx:          ctx,
		cancel:       cancel,
		consumerDone: make(chan struct{}),
		scene:        d.pack.Seed(),
		prof:         d.profile,
		firedOnce:    make(map[string]bool),
	}
	for k, v := range d.numbers {
		s.scene.SetNumber(k, v)
	}
	for k, v := range d.strings {
		s.scene.SetText(k, v)
	}

	s.consumer = delivery.NewConsumer(s.queue, d.transport)
	go func() {
		defer close(s.consumerDone)
		s.consumer.Run(ctx)
	}()

	opening := datatypes.NewLine(d.pack.Opening, datatypes.PriorityNormal, false)
	opening.Speaker = datatypes.RolePartner
	s.queue.Enqueue(opening)
	s.transcript.Append(0, datatypes.RolePartner, d.pack.Opening)

	if m := observability.DefaultMetrics; m != nil {
		m.SessionStarted()
	}
	return s
}

// =============================================================================
// Turn Admission
// =============================================================================

// Turn admits one player utterance.
//
// # Description
//
//	Admission happens under the slot lock: the utterance joins the
//	transcript, any generation still awaiting the backend is superseded,
//	pending background content is evicted, the director's cooldowns tick,
//	and a turn task is spawned to produce the reply. Turn returns as soon
//	as admission completes; content reaches the player asynchronously
//	through the delivery queue.
//
//	A turn that is merely awaiting the backend does not block admission.
//	The newcomer cancels that generation and takes over the slot, so the
//	backend never runs more than one generation per session and a slow
//	reply can never land on top of a newer utterance. Only the commit
//	phase of a previous turn, which is mutating scene and profile state,
//	rejects the newcomer outright.
//
// # Inputs
//
//	text - The player utterance. Must contain non-whitespace content.
//
// # Outputs
//
//	error - nil once the turn is admitted. ErrSessionBusy while a commit
//	is in progress, ErrSessionClosed after End, datatypes.ErrEmptyTurn
//	for blank input.
func (s *Session) Turn(text string) error {
	if strings.TrimSpace(text) == "" {
		return datatypes.ErrEmptyTurn
	}

	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.gate.Busy() {
		recordTurn(observability.TurnBusy)
		return ErrSessionBusy
	}

	// Supersede a generation still awaiting the backend. Its token goes
	// stale here; cancelling the context just stops paying for an answer
	// nobody will read.
	if s.superseder != nil {
		s.superseder()
		s.superseder = nil
	}
	token := s.seq.Begin()

	s.stateMu.Lock()
	s.actionCount++
	s.transcript.Append(s.actionCount, datatypes.RolePlayer, text)
	prompt := s.replyPrompt()
	s.stateMu.Unlock()

	// Ambient material queued for the previous beat is stale the moment
	// the player acts again.
	s.queue.EvictBackground()
	s.director.Tick()

	turnCtx, cancel := context.WithCancel(s.ctx)
	s.superseder = cancel
	s.turns.Add(1)
	go s.runTurn(turnCtx, token, prompt)

	recordTurn(observability.TurnAccepted)
	return nil
}

// runTurn produces and, if still wanted, commits one reply. It runs on its
// own goroutine; ctx dies when the turn is superseded or the session ends.
func (s *Session) runTurn(ctx context.Context, token uint64, prompt string) {
	defer s.turns.Done()
	start := time.Now()

	genCtx, cancelGen := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	reply, err := s.generateReply(genCtx, prompt)
	cancelGen()

	s.slotMu.Lock()

	// Staleness is checked before the error: a superseded generation
	// surfaces as a cancellation error, and it must die silently rather
	// than emit a wait signal for a turn the player already replaced.
	if s.closed || !s.seq.IsCurrent(token) {
		s.slotMu.Unlock()
		recordStaleDrop()
		slog.Debug("dropped stale turn result",
			"session_id", s.ID,
			"token", token,
		)
		s.emitTurn(TurnOutcomeSuperseded, start)
		return
	}
	s.superseder = nil

	if err != nil {
		s.slotMu.Unlock()
		slog.Warn("reply generation failed",
			"session_id", s.ID,
			"error", err,
		)
		s.queue.Enqueue(datatypes.NewWaitSignal())
		recordTurn(observability.TurnFailed)
		s.emitTurn(TurnOutcomeFailed, start)
		return
	}

	// Cannot fail: a committing turn holds the current token, and ours is
	// current, so no commit can be running.
	s.gate.TryAcquire()
	s.slotMu.Unlock()
	defer s.gate.Release()

	s.commit(ctx, reply)
	s.emitTurn(TurnOutcomeDelivered, start)
}

// =============================================================================
// Commit Phase
// =============================================================================

// commit folds an accepted reply into the session: transcript, delivery,
// reaction rules, endings, and finally the director. The gate is held for
// the whole phase, so state mutation is single-threaded even though slotMu
// is free.
func (s *Session) commit(ctx context.Context, reply string) {
	s.stateMu.Lock()
	s.transcript.Append(s.actionCount, datatypes.RolePartner, reply)
	rendered := s.transcript.Render(s.cfg.PredicateWindow)
	s.stateMu.Unlock()

	item := datatypes.NewLine(reply, datatypes.PriorityNormal, false)
	item.Speaker = datatypes.RolePartner
	s.queue.Enqueue(item)

	s.applyRules(ctx, rendered)

	if s.applyEndings(ctx) {
		// The scene just closed and re-seeded. The director sits this
		// beat out; the ending line is enough stagecraft for one turn.
		return
	}
	if ctx.Err() != nil {
		return
	}

	s.stateMu.Lock()
	scene := s.scene.Clone()
	prof := s.prof.Clone()
	s.stateMu.Unlock()
	s.director.Step(ctx, scene, prof, s.queue)
}

// applyRules tests every pack rule against the rendered transcript and
// fires the ones whose predicates hold, in pack order.
func (s *Session) applyRules(ctx context.Context, rendered string) {
	for i := range s.pack.Rules {
		if ctx.Err() != nil {
			return
		}
		rule := &s.pack.Rules[i]
		if rule.Once && s.firedOnce[rule.Name] {
			continue
		}
		if !s.predicates.Evaluate(ctx, rendered, rule.Predicate, rule.Latch) {
			continue
		}
		s.fireRule(ctx, rule, rendered)
	}
}

// fireRule applies one rule's effects and enqueues its line. Once-marking
// happens first so effects cannot double-apply when line generation fails.
func (s *Session) fireRule(ctx context.Context, rule *content.Rule, rendered string) {
	if rule.Once {
		s.firedOnce[rule.Name] = true
	}

	if !rule.Effects.Empty() {
		s.stateMu.Lock()
		for name, delta := range rule.Effects.Traits {
			if !s.prof.AdjustTrait(name, delta) {
				slog.Warn("rule adjusts unknown trait",
					"rule", rule.Name,
					"trait", name,
				)
			}
		}
		for id, delta := range rule.Effects.Relationships {
			s.prof.AdjustRelationship(id, delta)
		}
		for name, delta := range rule.Effects.Numbers {
			s.scene.AddNumber(name, delta)
		}
		s.stateMu.Unlock()
	}

	text := rule.Line
	if rule.Generate != "" {
		generated, err := s.generateRuleLine(ctx, rendered, rule.Generate)
		if err != nil {
			slog.Warn("rule line generation failed",
				"session_id", s.ID,
				"rule", rule.Name,
				"error", err,
			)
			return
		}
		text = generated
	}
	if text == "" {
		return
	}

	speaker := rule.Speaker
	if speaker == "" {
		speaker = datatypes.RolePartner
	}
	lineItem := datatypes.NewLine(text, rule.Priority, rule.Cancellable)
	lineItem.Speaker = speaker
	s.queue.Enqueue(lineItem)

	// Cancellable material may never reach the player, so only guaranteed
	// lines join the transcript the backend sees.
	if !rule.Cancellable {
		s.stateMu.Lock()
		s.transcript.Append(s.actionCount, speaker, text)
		s.stateMu.Unlock()
	}

	slog.Debug("rule fired",
		"session_id", s.ID,
		"rule", rule.Name,
	)
}

// applyEndings tests scene endings in pack order and closes the scene run
// on the first hit. Reports whether an ending fired.
func (s *Session) applyEndings(ctx context.Context) bool {
	if len(s.pack.Endings) == 0 {
		return false
	}

	s.stateMu.Lock()
	rendered := s.transcript.Render(s.cfg.PredicateWindow)
	s.stateMu.Unlock()

	for _, ending := range s.pack.Endings {
		if ctx.Err() != nil {
			return false
		}
		// Endings never latch; a restarted scene must be able to end
		// again on the same condition.
		if !s.predicates.Evaluate(ctx, rendered, ending.Predicate, false) {
			continue
		}
		s.endScene(ending)
		return true
	}
	return false
}

// endScene records the outcome, announces the ending, checkpoints the
// profile, and re-seeds the scene for another run. The transcript, latched
// predicates, and once-markers survive the reset; they belong to the
// session, not the run.
func (s *Session) endScene(ending content.Ending) {
	s.stateMu.Lock()
	s.prof.RecordOutcome(ending.Success)
	s.transcript.Append(s.actionCount, datatypes.RoleDirector, ending.Line)
	s.scene = s.pack.Seed()
	s.stateMu.Unlock()

	item := datatypes.NewLine(ending.Line, datatypes.PriorityCritical, false)
	item.Speaker = datatypes.RoleDirector
	s.queue.Enqueue(item)

	slog.Info("scene ended",
		"session_id", s.ID,
		"scene", s.pack.Scene,
		"ending", ending.Name,
		"success", ending.Success,
	)
	s.checkpoint()
}

// =============================================================================
// Prompts and Generation
// =============================================================================

// replyPrompt renders the reply prompt from the persona, the compact scene
// state, and the transcript tail. Caller holds stateMu.
func (s *Session) replyPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.pack.Persona))
	b.WriteString("\n\n")
	if compact := s.scene.Compact(); compact != "" {
		fmt.Fprintf(&b, "Scene state: %s\n", compact)
	}
	b.WriteString("Recent conversation:\n")
	b.WriteString(s.transcript.Render(s.cfg.TranscriptWindow))
	b.WriteString("\nGive the partner's next line, in character. Output only the line itself.")
	return b.String()
}

func (s *Session) generateReply(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.9)
	maxTokens := 220
	start := time.Now()
	raw, err := s.backend.Generate(ctx, prompt, genai.Params{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	observeBackend(observability.OpTurn, time.Since(start), err)
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", genai.ErrEmptyResponse
	}
	return reply, nil
}

func (s *Session) generateRuleLine(ctx context.Context, rendered, instruction string) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.pack.Persona))
	b.WriteString("\n\nRecent conversation:\n")
	b.WriteString(rendered)
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString("\nOutput only the line itself.")

	gctx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()

	temp := float32(0.8)
	maxTokens := 120
	start := time.Now()
	raw, err := s.backend.Generate(gctx, b.String(), genai.Params{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	observeBackend(observability.OpRule, time.Since(start), err)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(raw)
	if line == "" {
		return "", genai.ErrEmptyResponse
	}
	return line, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// End closes the session.
//
// # Description
//
//	Teardown order is deliberate: the sequencer is invalidated so any
//	in-flight result goes stale, the in-flight generation is cancelled,
//	the session context stops the consumer, and once the turn task drains
//	the profile is saved one last time. That final save doubles as the
//	retry for any checkpoint that failed mid-session. End is idempotent.
func (s *Session) End() {
	s.slotMu.Lock()
	if s.closed {
		s.slotMu.Unlock()
		return
	}
	s.closed = true
	s.seq.Invalidate()
	if s.superseder != nil {
		s.superseder()
		s.superseder = nil
	}
	s.slotMu.Unlock()

	s.cancel()
	s.turns.Wait()
	<-s.consumerDone

	s.checkpoint()
	s.archive()
	if m := observability.DefaultMetrics; m != nil {
		m.SessionEnded()
	}
	slog.Info("session ended",
		"session_id", s.ID,
		"player_id", s.PlayerID,
		"turns", s.seq.Turns(),
	)
}

// archive hands the finished session to the configured archiver. Runs
// after the turn task has drained, so state reads are quiescent.
func (s *Session) archive() {
	if s.archiver == nil {
		return
	}
	s.stateMu.Lock()
	rec := SessionRecord{
		SessionID:  s.ID,
		PlayerID:   s.PlayerID,
		Scene:      s.pack.Scene,
		StartedAt:  s.StartedAt,
		EndedAt:    time.Now(),
		Actions:    s.actionCount,
		Transcript: append(datatypes.Transcript(nil), s.transcript...),
		Profile:    s.prof.Clone(),
	}
	s.stateMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.archiver.ArchiveSession(ctx, rec); err != nil {
		slog.Error("session archive failed",
			"session_id", s.ID,
			"error", err,
		)
	}
}

// checkpoint persists the profile. Failures are logged and swallowed; the
// session keeps running on its in-memory copy and the next boundary writes
// the same full state again.
func (s *Session) checkpoint() {
	if s.store == nil {
		return
	}
	s.stateMu.Lock()
	prof := s.prof.Clone()
	s.stateMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, prof); err != nil {
		slog.Error("profile checkpoint failed",
			"session_id", s.ID,
			"player_id", s.PlayerID,
			"error", err,
		)
	}
}

// =============================================================================
// Introspection
// =============================================================================

// Snapshot is a point-in-time admin view of one session.
type Snapshot struct {
	ID            string                   `json:"id"`
	PlayerID      string                   `json:"player_id"`
	Scene         string                   `json:"scene"`
	StartedAt     time.Time                `json:"started_at"`
	Actions       int                      `json:"actions"`
	TranscriptLen int                      `json:"transcript_len"`
	QueueDepth    int                      `json:"queue_depth"`
	Difficulty    datatypes.Difficulty     `json:"difficulty"`
	Profile       *datatypes.PlayerProfile `json:"profile"`
	State         *datatypes.SceneState    `json:"state"`
}

// Snapshot copies the session's current state. Safe to call while a turn
// is in flight.
func (s *Session) Snapshot() Snapshot {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return Snapshot{
		ID:            s.ID,
		PlayerID:      s.PlayerID,
		Scene:         s.scene.Scene,
		StartedAt:     s.StartedAt,
		Actions:       s.actionCount,
		TranscriptLen: len(s.transcript),
		QueueDepth:    s.queue.Depth(),
		Difficulty:    director.ComputeDifficulty(s.prof.SuccessRate(), s.prof.Attempts()),
		Profile:       s.prof.Clone(),
		State:         s.scene.Clone(),
	}
}

// Transcript returns a copy of the session transcript.
func (s *Session) Transcript() datatypes.Transcript {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return append(datatypes.Transcript(nil), s.transcript...)
}

// emitTurn reports one finished turn task to the analytics sink.
func (s *Session) emitTurn(status string, start time.Time) {
	if s.sink == nil {
		return
	}
	s.stateMu.Lock()
	numbers := make(map[string]float64, len(s.scene.Numbers))
	for k, v := range s.scene.Numbers {
		numbers[k] = v
	}
	s.stateMu.Unlock()

	s.sink(TurnEvent{
		SessionID:  s.ID,
		PlayerID:   s.PlayerID,
		Scene:      s.pack.Scene,
		Status:     status,
		Latency:    time.Since(start),
		QueueDepth: s.queue.Depth(),
		Numbers:    numbers,
	})
}

func recordTurn(status observability.TurnStatus) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordTurn(status)
	}
}

func recordStaleDrop() {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordStaleDrop()
	}
}

func observeBackend(op observability.Operation, elapsed time.Duration, err error) {
	if m := observability.DefaultMetrics; m != nil {
		m.ObserveBackend(op, elapsed.Seconds(), err == nil)
	}
}
