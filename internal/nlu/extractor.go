package nlu

import "strings"

// Extractor finds entity keywords in an utterance.
type Extractor struct {
	lex *Lexicon
}

// NewExtractor returns an extractor backed by lex.
func NewExtractor(lex *Lexicon) *Extractor {
	return &Extractor{lex: lex}
}

// Extract collects every keyword hit across every entity type, in type then
// keyword declaration order. Values are the keywords as written in the
// lexicon, not the matched text. The result may hold duplicates.
func (e *Extractor) Extract(utterance string) []Entity {
	text := Fold(utterance)
	out := make([]Entity, 0)
	for _, en := range e.lex.entities {
		for _, kw := range en.keywords {
			if strings.Contains(text, kw.folded) {
				out = append(out, Entity{
					Type:       en.typ,
					Value:      kw.raw,
					Confidence: e.lex.entityConfidence,
				})
			}
		}
	}
	return out
}
