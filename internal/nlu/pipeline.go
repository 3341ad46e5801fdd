package nlu

// Pipeline runs classification and extraction together and offers the
// lookup helpers used by diagnostics endpoints.
type Pipeline struct {
	*Classifier
	*Extractor
}

// NewPipeline wires a classifier and an extractor over the same lexicon.
func NewPipeline(lex *Lexicon) *Pipeline {
	return &Pipeline{
		Classifier: NewClassifier(lex),
		Extractor:  NewExtractor(lex),
	}
}

// Parse classifies text and extracts its entities.
func (p *Pipeline) Parse(text string) ParseResult {
	return ParseResult{
		Intent:   p.Classify(text),
		Entities: p.Extract(text),
		Text:     text,
	}
}

// IntentName returns only the classified label.
func (p *Pipeline) IntentName(text string) string {
	return p.Classify(text).Name
}

// IntentConfidence returns only the classified confidence.
func (p *Pipeline) IntentConfidence(text string) float64 {
	return p.Classify(text).Confidence
}

// IsHighConfidence reports whether the classified confidence reaches threshold.
func (p *Pipeline) IsHighConfidence(text string, threshold float64) bool {
	return p.IntentConfidence(text) >= threshold
}

// EntityByType returns the first extracted value of the given type.
func (p *Pipeline) EntityByType(text, entityType string) (string, bool) {
	for _, e := range p.Extract(text) {
		if e.Type == entityType {
			return e.Value, true
		}
	}
	return "", false
}

// EntitiesByType returns every extracted value of the given type, in match order.
func (p *Pipeline) EntitiesByType(text, entityType string) []string {
	var out []string
	for _, e := range p.Extract(text) {
		if e.Type == entityType {
			out = append(out, e.Value)
		}
	}
	return out
}
