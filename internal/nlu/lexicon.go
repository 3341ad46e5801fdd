package nlu

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// LexiconSpec is the on-disk shape of the lexicon document.
type LexiconSpec struct {
	FallbackIntent      string          `yaml:"fallback_intent" validate:"required"`
	MaxIntentConfidence float64         `yaml:"max_intent_confidence" validate:"gt=0,lte=1"`
	EntityConfidence    float64         `yaml:"entity_confidence" validate:"gt=0,lte=1"`
	Intents             []IntentSpec    `yaml:"intents" validate:"min=1,unique=Label,dive"`
	Entities            []EntitySpec    `yaml:"entities" validate:"unique=Type,dive"`
	Overrides           []OverrideEntry `yaml:"overrides" validate:"dive"`
}

// IntentSpec declares one intent label and the keywords that signal it.
type IntentSpec struct {
	Label            string   `yaml:"label" validate:"required"`
	ConfidenceWeight float64  `yaml:"confidence_weight" validate:"gt=0,lte=1"`
	Keywords         []string `yaml:"keywords" validate:"min=1,dive,required"`
}

// EntitySpec declares an entity type and the context key its values land under.
type EntitySpec struct {
	Type       string   `yaml:"type" validate:"required"`
	ContextKey string   `yaml:"context_key" validate:"required"`
	Keywords   []string `yaml:"keywords" validate:"min=1,dive,required"`
}

// OverrideEntry forces an intent when the primary match is weak.
type OverrideEntry struct {
	Keyword string `yaml:"keyword" validate:"required"`
	Intent  string `yaml:"intent" validate:"required"`
}

type keyword struct {
	raw    string
	folded string
}

type intentEntry struct {
	label    string
	weight   float64
	keywords []keyword
}

type entityEntry struct {
	typ        string
	contextKey string
	keywords   []keyword
}

// Lexicon is the immutable keyword table behind classification and extraction.
// It is safe for concurrent use.
type Lexicon struct {
	fallback         string
	maxConfidence    float64
	entityConfidence float64
	intents          []intentEntry
	entities         []entityEntry
	overrides        []OverrideEntry
	contextKeys      map[string]string
}

var (
	defaultOnce    sync.Once
	defaultLexicon *Lexicon
	defaultErr     error
)

// DefaultLexicon returns the embedded lexicon, parsed on first use.
func DefaultLexicon() (*Lexicon, error) {
	defaultOnce.Do(func() {
		defaultLexicon, defaultErr = ParseLexicon(defaultLexiconYAML)
	})
	return defaultLexicon, defaultErr
}

// LoadLexicon reads a lexicon document from disk.
func LoadLexicon(path string) (*Lexicon, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLexicon(b)
}

// ParseLexicon decodes and validates a lexicon document.
func ParseLexicon(b []byte) (*Lexicon, error) {
	var spec LexiconSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	return NewLexicon(spec)
}

// NewLexicon validates spec and folds its keywords for matching.
func NewLexicon(spec LexiconSpec) (*Lexicon, error) {
	if err := validator.New().Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid lexicon: %w", err)
	}

	lex := &Lexicon{
		fallback:         spec.FallbackIntent,
		maxConfidence:    spec.MaxIntentConfidence,
		entityConfidence: spec.EntityConfidence,
		intents:          make([]intentEntry, 0, len(spec.Intents)),
		entities:         make([]entityEntry, 0, len(spec.Entities)),
		overrides:        append([]OverrideEntry(nil), spec.Overrides...),
		contextKeys:      make(map[string]string, len(spec.Entities)),
	}
	for _, in := range spec.Intents {
		lex.intents = append(lex.intents, intentEntry{
			label:    in.Label,
			weight:   in.ConfidenceWeight,
			keywords: foldKeywords(in.Keywords),
		})
	}
	for _, en := range spec.Entities {
		lex.entities = append(lex.entities, entityEntry{
			typ:        en.Type,
			contextKey: en.ContextKey,
			keywords:   foldKeywords(en.Keywords),
		})
		lex.contextKeys[en.Type] = en.ContextKey
	}
	return lex, nil
}

func foldKeywords(in []string) []keyword {
	out := make([]keyword, 0, len(in))
	for _, k := range in {
		out = append(out, keyword{raw: k, folded: Fold(k)})
	}
	return out
}

// FallbackIntent is the label reported when no keyword matches.
func (l *Lexicon) FallbackIntent() string { return l.fallback }

// Labels lists intent labels in scan order.
func (l *Lexicon) Labels() []string {
	out := make([]string, 0, len(l.intents))
	for _, in := range l.intents {
		out = append(out, in.label)
	}
	return out
}

// EntityTypes lists entity types in scan order.
func (l *Lexicon) EntityTypes() []string {
	out := make([]string, 0, len(l.entities))
	for _, en := range l.entities {
		out = append(out, en.typ)
	}
	return out
}

// ContextKey maps an entity type to the context key its values accumulate under.
func (l *Lexicon) ContextKey(entityType string) (string, bool) {
	k, ok := l.contextKeys[entityType]
	return k, ok
}

// ContextKeys lists the context keys in entity declaration order.
func (l *Lexicon) ContextKeys() []string {
	out := make([]string, 0, len(l.entities))
	for _, en := range l.entities {
		out = append(out, en.contextKey)
	}
	return out
}

// Overrides returns the low-confidence override table in scan order.
func (l *Lexicon) Overrides() []OverrideEntry {
	return append([]OverrideEntry(nil), l.overrides...)
}
