package shorts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateSession(ctx context.Context, s *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error

	SaveClipPlans(ctx context.Context, sessionID string, plans []ClipPlan) error
	GetClip(ctx context.Context, sessionID string, ordinal int) (*ClipRecord, error)
	ListClips(ctx context.Context, sessionID string) ([]*ClipRecord, error)
	UpdateClipState(ctx context.Context, sessionID string, ordinal int, state ClipState, errMsg string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s *SessionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, video_id, source_ref, source_path, aspect_ratio, title, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.VideoID, s.SourceRef, s.SourcePath, int(s.AspectRatio), nullString(s.Title), s.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, video_id, source_ref, source_path, aspect_ratio, title, created_at
		FROM sessions WHERE id = ?
	`, id)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, source_ref, source_path, aspect_ratio, title, created_at
		FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(scan func(dest ...any) error) (*SessionRecord, error) {
	var s SessionRecord
	var aspect int
	var title sql.NullString
	var createdAt string
	if err := scan(&s.ID, &s.VideoID, &s.SourceRef, &s.SourcePath, &aspect, &title, &createdAt); err != nil {
		return nil, err
	}
	s.AspectRatio = AspectRatio(aspect)
	s.Title = title.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

// SaveClipPlans stores plans for a session. Re-saving an ordinal replaces
// its timing and names and resets it to planned.
func (r *SQLiteRepository) SaveClipPlans(ctx context.Context, sessionID string, plans []ClipPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clips (id, session_id, ordinal, title, content, reason, start_ms, duration_ms,
			file_name, thumbnail_name, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, ordinal) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			reason = excluded.reason,
			start_ms = excluded.start_ms,
			duration_ms = excluded.duration_ms,
			file_name = excluded.file_name,
			thumbnail_name = excluded.thumbnail_name,
			state = excluded.state,
			error = NULL,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range plans {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), sessionID, p.Index, p.Title, p.Content, p.Reason,
			p.StartOffset.Milliseconds(), p.Duration.Milliseconds(), p.PlannedFileName, p.PlannedThumbnail,
			string(StatePlanned), now, now); err != nil {
			return fmt.Errorf("save clip %d: %w", p.Index, err)
		}
	}
	return tx.Commit()
}

const clipColumns = `id, session_id, ordinal, title, content, reason, start_ms, duration_ms,
	file_name, thumbnail_name, state, error, created_at, updated_at`

func (r *SQLiteRepository) GetClip(ctx context.Context, sessionID string, ordinal int) (*ClipRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+clipColumns+" FROM clips WHERE session_id = ? AND ordinal = ?", sessionID, ordinal)
	c, err := scanClip(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *SQLiteRepository) ListClips(ctx context.Context, sessionID string) ([]*ClipRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+clipColumns+" FROM clips WHERE session_id = ? ORDER BY ordinal", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []*ClipRecord
	for rows.Next() {
		c, err := scanClip(rows.Scan)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func scanClip(scan func(dest ...any) error) (*ClipRecord, error) {
	var c ClipRecord
	var startMs, durationMs int64
	var state string
	var errMsg sql.NullString
	var createdAt, updatedAt string
	if err := scan(&c.ID, &c.SessionID, &c.Ordinal, &c.Title, &c.Content, &c.Reason, &startMs, &durationMs,
		&c.FileName, &c.ThumbnailName, &state, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Start = time.Duration(startMs) * time.Millisecond
	c.Duration = time.Duration(durationMs) * time.Millisecond
	c.State = ClipState(state)
	c.Error = errMsg.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func (r *SQLiteRepository) UpdateClipState(ctx context.Context, sessionID string, ordinal int, state ClipState, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clips SET state = ?, error = ?, updated_at = ? WHERE session_id = ? AND ordinal = ?
	`, string(state), nullString(errMsg), time.Now().UTC().Format(time.RFC3339), sessionID, ordinal)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("clip %d of session %s: %w", ordinal, sessionID, sql.ErrNoRows)
	}
	return nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// planFromRecord rebuilds a renderable plan from storage.
func planFromRecord(c *ClipRecord, session *SessionRecord) ClipPlan {
	return ClipPlan{
		Index:             c.Ordinal,
		Title:             c.Title,
		Content:           c.Content,
		Reason:            c.Reason,
		StartOffset:       c.Start,
		Duration:          c.Duration,
		AspectRatio:       session.AspectRatio,
		SourcePath:        session.SourcePath,
		PlannedFileName:   c.FileName,
		PlannedThumbnail:  c.ThumbnailName,
		DisplayedDuration: FormatClipDuration(c.Duration),
	}
}
