package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/randalmurphal/docflow"
)

//go:embed schema.sql
var schemaSQL string

// timeFormat stores timestamps sortably.
const timeFormat = time.RFC3339Nano

// SQLite persists records in a sqlite database. It implements both
// docflow.RecordStore and docflow.PublicationStore.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the database at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Create inserts a new change record.
func (s *SQLite) Create(ctx context.Context, rec *docflow.ChangeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO change_records
			(id, source_ticket_id, document_id, trigger_reason, pipeline_stage,
			 review_ticket_id, base_version, proposed_version, last_error,
			 detected_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceTicketID, rec.DocumentID, string(rec.TriggerReason), string(rec.Stage),
		rec.ReviewTicketID, rec.BaseVersion, rec.ProposedVersion, rec.LastError,
		rec.DetectedAt.UTC().Format(timeFormat), rec.LastUpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert change record: %w", err)
	}
	return nil
}

// Get returns the record by ID.
func (s *SQLite) Get(ctx context.Context, id string) (*docflow.ChangeRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+" WHERE id = ?", id)
	return scanRecord(row)
}

// Latest returns the most recent record for a document.
func (s *SQLite) Latest(ctx context.Context, documentID string) (*docflow.ChangeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		selectRecord+" WHERE document_id = ? ORDER BY detected_at DESC, id DESC LIMIT 1", documentID)
	return scanRecord(row)
}

// ByReviewTicket returns the record tied to a review ticket.
func (s *SQLite) ByReviewTicket(ctx context.Context, reviewTicketID string) (*docflow.ChangeRecord, error) {
	if reviewTicketID == "" {
		return nil, docflow.ErrRecordNotFound
	}
	row := s.db.QueryRowContext(ctx,
		selectRecord+" WHERE review_ticket_id = ? ORDER BY detected_at DESC, id DESC LIMIT 1", reviewTicketID)
	return scanRecord(row)
}

// AdvanceStage conditionally moves the record from fromStage to the
// state carried by rec. Losing the condition is reported as
// docflow.ErrStageConflict; the stage move is also appended to the
// record's history.
func (s *SQLite) AdvanceStage(ctx context.Context, rec *docflow.ChangeRecord, fromStage docflow.PipelineStage) error {
	if err := docflow.ValidateTransition(fromStage, rec.Stage); err != nil {
		return err
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE change_records
		SET pipeline_stage = ?, review_ticket_id = ?, base_version = ?,
		    proposed_version = ?, last_error = ?, last_updated_at = ?
		WHERE id = ? AND pipeline_stage = ?`,
		string(rec.Stage), rec.ReviewTicketID, rec.BaseVersion,
		rec.ProposedVersion, rec.LastError, now.Format(timeFormat),
		rec.ID, string(fromStage))
	if err != nil {
		return fmt.Errorf("advance stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance stage: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing record.
		var exists int
		if scanErr := tx.QueryRowContext(ctx,
			"SELECT 1 FROM change_records WHERE id = ?", rec.ID).Scan(&exists); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return docflow.ErrRecordNotFound
			}
			return fmt.Errorf("advance stage: %w", scanErr)
		}
		return docflow.ErrStageConflict
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stage_history (record_id, from_stage, to_stage, moved_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, string(fromStage), string(rec.Stage), now.Format(timeFormat)); err != nil {
		return fmt.Errorf("append stage history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	rec.LastUpdatedAt = now
	return nil
}

// History returns the record's stage moves in the order they happened.
// A record that never advanced has an empty history.
func (s *SQLite) History(ctx context.Context, id string) ([]docflow.StageMove, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_stage, to_stage, moved_at
		FROM stage_history WHERE record_id = ? ORDER BY moved_at, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query stage history: %w", err)
	}
	defer rows.Close()

	var moves []docflow.StageMove
	for rows.Next() {
		var from, to, movedAt string
		if err := rows.Scan(&from, &to, &movedAt); err != nil {
			return nil, fmt.Errorf("scan stage history: %w", err)
		}
		move := docflow.StageMove{
			From: docflow.PipelineStage(from),
			To:   docflow.PipelineStage(to),
		}
		move.MovedAt, _ = time.Parse(timeFormat, movedAt)
		moves = append(moves, move)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stage history: %w", err)
	}
	return moves, nil
}

// SetLastError attaches a failure detail without changing the stage.
func (s *SQLite) SetLastError(ctx context.Context, id, detail string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE change_records SET last_error = ?, last_updated_at = ? WHERE id = ?`,
		detail, time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("set last error: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return docflow.ErrRecordNotFound
	}
	return nil
}

// PutPublication writes a publication record, first writer wins. If a record
// already exists for the key, the existing record is returned along
// with docflow.ErrPublicationExists.
func (s *SQLite) PutPublication(ctx context.Context, rec *docflow.PublicationRecord) (*docflow.PublicationRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO publication_records
			(idempotency_key, document_id, version, record_id, external_page_ref, published_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.IdempotencyKey(), rec.DocumentID, rec.Version, rec.RecordID,
		rec.ExternalPageRef, rec.PublishedAt.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("insert publication record: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		existing, getErr := s.getPublication(ctx, rec.IdempotencyKey())
		if getErr != nil {
			return nil, getErr
		}
		return existing, docflow.ErrPublicationExists
	}
	return rec, nil
}

// GetPublication returns the publication record for an idempotency key.
func (s *SQLite) GetPublication(ctx context.Context, key string) (*docflow.PublicationRecord, error) {
	return s.getPublication(ctx, key)
}

func (s *SQLite) getPublication(ctx context.Context, key string) (*docflow.PublicationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, version, record_id, external_page_ref, published_at
		FROM publication_records WHERE idempotency_key = ?`, key)

	var rec docflow.PublicationRecord
	var publishedAt string
	if err := row.Scan(&rec.DocumentID, &rec.Version, &rec.RecordID, &rec.ExternalPageRef, &publishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docflow.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan publication record: %w", err)
	}
	rec.PublishedAt, _ = time.Parse(timeFormat, publishedAt)
	return &rec, nil
}

const selectRecord = `
	SELECT id, source_ticket_id, document_id, trigger_reason, pipeline_stage,
	       review_ticket_id, base_version, proposed_version, last_error,
	       detected_at, last_updated_at
	FROM change_records`

func scanRecord(row *sql.Row) (*docflow.ChangeRecord, error) {
	var rec docflow.ChangeRecord
	var reason, stage, detectedAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.SourceTicketID, &rec.DocumentID, &reason, &stage,
		&rec.ReviewTicketID, &rec.BaseVersion, &rec.ProposedVersion, &rec.LastError,
		&detectedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docflow.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan change record: %w", err)
	}
	rec.TriggerReason = docflow.TriggerReason(reason)
	rec.Stage = docflow.PipelineStage(stage)
	rec.DetectedAt, _ = time.Parse(timeFormat, detectedAt)
	rec.LastUpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &rec, nil
}
