package nlu

import "math"

// Classifier maps an utterance to a single intent.
type Classifier struct {
	lex *Lexicon
}

// NewClassifier returns a classifier backed by lex.
func NewClassifier(lex *Lexicon) *Classifier {
	return &Classifier{lex: lex}
}

// Classify returns the highest-weighted intent whose keywords occur in the
// utterance. Only the first matching keyword of each label counts, and on
// equal scores the label scanned first wins.
func (c *Classifier) Classify(utterance string) Intent {
	text := Fold(utterance)
	best := Intent{Name: c.lex.fallback, Confidence: 0}
	for _, in := range c.lex.intents {
		if _, ok := containsAny(text, in.keywords); !ok {
			continue
		}
		score := math.Min(c.lex.maxConfidence, in.weight)
		if score > best.Confidence {
			best = Intent{Name: in.label, Confidence: score}
		}
	}
	return best
}
