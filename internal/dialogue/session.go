package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"medchat-backend/internal/logger"
	"medchat-backend/internal/nlu"
)

// Role marks who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a session's history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnResult is what ProcessTurn hands back to the transport layer.
type TurnResult struct {
	Response string       `json:"response"`
	Intent   nlu.Intent   `json:"intent"`
	Entities []nlu.Entity `json:"entities"`
	Context  Context      `json:"context"`
}

// Session is one conversation: its history and accumulated context. Turns on
// the same session are serialised; different sessions share nothing.
type Session struct {
	id         string
	engine     *Engine
	createdAt  time.Time
	lastActive atomic.Int64

	mu      sync.Mutex
	history []Turn
	context Context
}

// ID returns the session id assigned at creation.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActive does not take the turn lock, so sweepers never wait on a slow generator.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(s.engine.now().UnixNano())
}

// ProcessTurn classifies the utterance, folds its entities into the context
// and resolves a reply. The user turn is recorded before the reply is
// resolved and stays recorded if the generator fails; the assistant turn is
// only appended on success.
func (s *Session) ProcessTurn(ctx context.Context, utterance string) (TurnResult, error) {
	if strings.TrimSpace(utterance) == "" {
		return TurnResult{}, ErrEmptyUtterance
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	e := s.engine
	intent := e.classifier.Classify(utterance)
	entities := e.extractor.Extract(utterance)

	overridden := false
	if intent.Confidence < LowConfidenceThreshold {
		if forced, ok := e.override(utterance); ok {
			intent = forced
			overridden = true
		}
	}

	userTurn := Turn{Role: RoleUser, Content: utterance, Timestamp: e.now()}
	s.history = append(s.history, userTurn)
	s.mergeEntities(entities)

	log := logger.FromContext(ctx, e.log).WithFields(logrus.Fields{
		"session_id": s.id,
		"intent":     intent.Name,
		"confidence": intent.Confidence,
		"overridden": overridden,
		"entities":   len(entities),
	})

	reply, err := e.respond(ctx, utterance, intent, s.context.Clone())
	// A slow generator must not leave the session looking idle to sweepers.
	s.touch()
	if err != nil {
		log.WithField("error", err.Error()).Error("failed to resolve reply")
		return TurnResult{}, err
	}

	assistantTurn := Turn{Role: RoleAssistant, Content: reply, Timestamp: e.now()}
	s.history = append(s.history, assistantTurn)
	log.Debug("turn processed")

	e.archive(ctx, ArchiveRecord{
		SessionID: s.id,
		Intent:    intent,
		User:      userTurn,
		Assistant: assistantTurn,
	})

	return TurnResult{
		Response: reply,
		Intent:   intent,
		Entities: entities,
		Context:  s.context.Clone(),
	}, nil
}

func (s *Session) mergeEntities(entities []nlu.Entity) {
	for _, ent := range entities {
		key, ok := s.engine.lex.ContextKey(ent.Type)
		if !ok {
			continue
		}
		s.context.add(key, ent.Value)
	}
}

// Reset empties history and context, returning the session to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = []Turn{}
	s.context = Context{}
	s.touch()
}

// MergeContext overwrites the given keys, used to restore or seed a session.
// Either every key is applied or, if one is unknown, none is.
func (s *Session) MergeContext(partial Context) error {
	for k := range partial {
		if _, ok := s.engine.contextKeys[k]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownContextKey, k)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range partial {
		s.context[k] = dedupe(v)
	}
	s.touch()
	return nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn{}, s.history...)
}

// Context returns a copy of the accumulated context.
func (s *Session) Context() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.Clone()
}

// Idle reports whether the session has no history.
func (s *Session) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) == 0
}
