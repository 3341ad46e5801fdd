package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"medchat-backend/internal/dialogue"
)

const queryInsertTurn = `
	INSERT INTO turn_archive (session_id, intent, confidence, user_text, assistant_text, user_at, assistant_at)
	VALUES (:session_id, :intent, :confidence, :user_text, :assistant_text, :user_at, :assistant_at)
`

// DatabaseArchive writes completed exchanges to Postgres. It is write-only:
// sessions are never restored from it.
type DatabaseArchive struct {
	db *sqlx.DB
}

func NewDatabaseArchive(db *sqlx.DB) *DatabaseArchive {
	return &DatabaseArchive{db: db}
}

type turnRow struct {
	SessionID     string    `db:"session_id"`
	Intent        string    `db:"intent"`
	Confidence    float64   `db:"confidence"`
	UserText      string    `db:"user_text"`
	AssistantText string    `db:"assistant_text"`
	UserAt        time.Time `db:"user_at"`
	AssistantAt   time.Time `db:"assistant_at"`
}

func newTurnRow(rec dialogue.ArchiveRecord) turnRow {
	return turnRow{
		SessionID:     rec.SessionID,
		Intent:        rec.Intent.Name,
		Confidence:    rec.Intent.Confidence,
		UserText:      rec.User.Content,
		AssistantText: rec.Assistant.Content,
		UserAt:        rec.User.Timestamp.UTC(),
		AssistantAt:   rec.Assistant.Timestamp.UTC(),
	}
}

func (a *DatabaseArchive) Archive(ctx context.Context, rec dialogue.ArchiveRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if _, err := a.db.NamedExecContext(ctx, queryInsertTurn, newTurnRow(rec)); err != nil {
		return fmt.Errorf("failed to archive turn: %w", err)
	}
	return nil
}
