package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"medchat-backend/internal/logger"
	"medchat-backend/internal/nlu"
)

const (
	// LowConfidenceThreshold separates usable classifications from ones that
	// need the override table or a clarification reply.
	LowConfidenceThreshold = 0.3
	// OverrideConfidence is assigned to intents forced by the override table.
	OverrideConfidence = 0.9

	archiveTimeout = 5 * time.Second
)

// Generator produces reply text for an intent given the accumulated context.
// topic is empty for intents that answer from context alone.
type Generator interface {
	Generate(ctx context.Context, topic, intent string, c Context) (string, error)
}

// ArchiveRecord is one completed user/assistant exchange.
type ArchiveRecord struct {
	SessionID string
	Intent    nlu.Intent
	User      Turn
	Assistant Turn
}

// Archiver receives completed exchanges. Failures are logged and never fail a turn.
type Archiver interface {
	Archive(ctx context.Context, rec ArchiveRecord) error
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithArchiver records every completed exchange in a.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithGenerateTimeout bounds each generator call. Zero leaves the caller's
// deadline as the only bound.
func WithGenerateTimeout(d time.Duration) Option {
	return func(e *Engine) { e.generateTimeout = d }
}

// Engine holds everything sessions share: the lexicon-driven classifier and
// extractor, the override table and the generator. It has no per-conversation
// state and is safe for concurrent use.
type Engine struct {
	lex             *nlu.Lexicon
	classifier      *nlu.Classifier
	extractor       *nlu.Extractor
	overrides       []nlu.OverrideEntry
	contextKeys     map[string]struct{}
	generator       Generator
	archiver        Archiver
	log             logrus.FieldLogger
	now             func() time.Time
	generateTimeout time.Duration
}

// NewEngine builds an engine over lex and gen; both are required.
func NewEngine(lex *nlu.Lexicon, gen Generator, opts ...Option) (*Engine, error) {
	if lex == nil {
		return nil, errors.New("lexicon is required")
	}
	if gen == nil {
		return nil, errors.New("response generator is required")
	}
	e := &Engine{
		lex:         lex,
		classifier:  nlu.NewClassifier(lex),
		extractor:   nlu.NewExtractor(lex),
		overrides:   lex.Overrides(),
		contextKeys: make(map[string]struct{}),
		generator:   gen,
		log:         logger.Discard(),
		now:         time.Now,
	}
	for _, k := range lex.ContextKeys() {
		e.contextKeys[k] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewSession starts an idle session under id.
func (e *Engine) NewSession(id string) *Session {
	s := &Session{
		id:        id,
		engine:    e,
		createdAt: e.now(),
		history:   []Turn{},
		context:   Context{},
	}
	s.touch()
	return s
}

// override scans the raw, un-normalised utterance.
func (e *Engine) override(utterance string) (nlu.Intent, bool) {
	for _, o := range e.overrides {
		if strings.Contains(utterance, o.Keyword) {
			return nlu.Intent{Name: o.Intent, Confidence: OverrideConfidence}, true
		}
	}
	return nlu.Intent{}, false
}

func (e *Engine) respond(ctx context.Context, utterance string, intent nlu.Intent, c Context) (string, error) {
	if intent.Confidence < LowConfidenceThreshold {
		return ClarifyReply, nil
	}
	h, ok := dispatchTable[intent.Name]
	if !ok {
		return e.generate(ctx, utterance, intent.Name, c)
	}
	switch h.kind {
	case handlerCanned, handlerSafety:
		return h.reply, nil
	default:
		return e.generate(ctx, "", intent.Name, c)
	}
}

func (e *Engine) generate(ctx context.Context, topic, intent string, c Context) (string, error) {
	callCtx := ctx
	if e.generateTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.generateTimeout)
		defer cancel()
	}

	text, err := e.generator.Generate(callCtx, topic, intent, c)
	if err != nil {
		return "", newGeneratorError(callCtx, intent, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", newGeneratorError(callCtx, intent, fmt.Errorf("%w: empty reply", ErrMalformedReply))
	}
	return text, nil
}

func (e *Engine) archive(ctx context.Context, rec ArchiveRecord) {
	if e.archiver == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := e.archiver.Archive(actx, rec); err != nil {
		logger.FromContext(ctx, e.log).WithFields(logrus.Fields{
			"session_id": rec.SessionID,
			"error":      err.Error(),
		}).Warn("failed to archive turn")
	}
}
