package types

import (
	"medchat-backend/internal/dialogue"
	"medchat-backend/internal/nlu"
)

type ChatRequest struct {
	Message string `json:"message" validate:"required"`
}

type ChatResponse struct {
	SessionID string           `json:"sessionId"`
	Reply     string           `json:"reply"`
	Intent    nlu.Intent       `json:"intent"`
	Entities  []nlu.Entity     `json:"entities"`
	Context   dialogue.Context `json:"context"`
	// Timestamp is the local wall-clock time of the reply, "HH:MM".
	Timestamp string `json:"timestamp"`
}

// NewChatResponse answers both new_chat and session deletion.
type NewChatResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

type HistoryResponse struct {
	SessionID string          `json:"sessionId"`
	History   []dialogue.Turn `json:"history"`
}

type ContextRequest struct {
	Context dialogue.Context `json:"context" validate:"required"`
}

type ContextResponse struct {
	SessionID string           `json:"sessionId"`
	Context   dialogue.Context `json:"context"`
}

type ParseRequest struct {
	Text string `json:"text" validate:"required"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	// Archive is empty when no turn archive is configured.
	Archive string `json:"archive,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
