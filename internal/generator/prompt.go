package generator

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"medchat-backend/internal/dialogue"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Style holds sampling parameters.
type Style struct {
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	TopP        float32 `yaml:"top_p" validate:"gte=0,lte=1"`
}

// PromptSpec holds everything sent to the model besides the user's context.
type PromptSpec struct {
	System   string            `yaml:"system" validate:"required"`
	Fallback string            `yaml:"fallback" validate:"required"`
	Intents  map[string]string `yaml:"intents"`
	Style    Style             `yaml:"style"`
}

// DefaultPrompts returns the embedded prompt spec.
func DefaultPrompts() (*PromptSpec, error) {
	return ParsePrompts(defaultPromptsYAML)
}

// LoadPrompts reads a prompt spec from path, or the embedded one when path is empty.
func LoadPrompts(path string) (*PromptSpec, error) {
	if path == "" {
		return DefaultPrompts()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrompts(b)
}

// ParsePrompts decodes and validates a prompt spec document.
func ParsePrompts(b []byte) (*PromptSpec, error) {
	var spec PromptSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	if err := validator.New().Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid prompts: %w", err)
	}
	return &spec, nil
}

// Render builds the user-role message for one generation request. Context
// keys are listed in sorted order so identical state renders identically.
func (p *PromptSpec) Render(topic, intent string, c dialogue.Context) string {
	var b strings.Builder

	instruction, ok := p.Intents[intent]
	if !ok {
		instruction = p.Fallback
	}
	b.WriteString(strings.TrimSpace(instruction))

	keys := make([]string, 0, len(c))
	for k, v := range c {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\n\nKnown context:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %s", k, strings.Join(c[k], ", "))
		}
	}

	if topic = strings.TrimSpace(topic); topic != "" {
		b.WriteString("\n\nUser message: ")
		b.WriteString(topic)
	}
	return b.String()
}

// SystemPrompt returns the persona text without surrounding whitespace.
func (p *PromptSpec) SystemPrompt() string {
	return strings.TrimSpace(p.System)
}
