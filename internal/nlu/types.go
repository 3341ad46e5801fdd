package nlu

// Intent is the classified purpose of one utterance.
type Intent struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Entity is one keyword occurrence of a domain entity type.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ParseResult bundles intent and entities for a single utterance.
type ParseResult struct {
	Intent   Intent   `json:"intent"`
	Entities []Entity `json:"entities"`
	Text     string   `json:"text"`
}
