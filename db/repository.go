package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ai_backend/core"
	"ai_backend/styles"
)

// sqliteTimeLayout matches SQLite's datetime() output, keeping stored
// timestamps comparable with datetime('now', ...) expressions.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// StyleStore persists the camera style catalog and its versioned prompt
// records. It implements styles.Loader (registry reloads) and
// styles.PromptStore (the database layer of the prompt resolver chain).
type StyleStore struct {
	db *Database
}

// NewStyleStore creates a StyleStore over db.
func NewStyleStore(db *Database) *StyleStore {
	return &StyleStore{db: db}
}

// LoadStyles returns every style row, active or not. The registry decides
// what to expose; the store just reports what's on disk.
func (s *StyleStore) LoadStyles(ctx context.Context) ([]styles.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, artifact_path, artifact_sha256, blend_weight, tier, active
		FROM styles
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query styles: %w", err)
	}
	defer rows.Close()

	var out []styles.Descriptor
	for rows.Next() {
		var d styles.Descriptor
		var tier string
		var active int
		if err := rows.Scan(&d.ID, &d.Name, &d.ArtifactPath, &d.ArtifactSHA256,
			&d.BlendWeight, &tier, &active); err != nil {
			return nil, fmt.Errorf("failed to scan style row: %w", err)
		}
		d.Tier = styles.ParseTier(tier)
		d.Active = active != 0
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("style row iteration failed: %w", err)
	}
	return out, nil
}

// UpsertStyle inserts or replaces a style row.
func (s *StyleStore) UpsertStyle(ctx context.Context, d styles.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	active := 0
	if d.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO styles (id, name, artifact_path, artifact_sha256, blend_weight, tier, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			artifact_path = excluded.artifact_path,
			artifact_sha256 = excluded.artifact_sha256,
			blend_weight = excluded.blend_weight,
			tier = excluded.tier,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP`,
		d.ID, d.Name, d.ArtifactPath, d.ArtifactSHA256, d.BlendWeight, string(d.Tier), active)
	if err != nil {
		return fmt.Errorf("failed to upsert style %s: %w", d.ID, err)
	}
	return nil
}

// SetActive flips a style's availability without touching the rest of the
// row. Deactivated styles disappear from the catalog on the next reload.
func (s *StyleStore) SetActive(ctx context.Context, styleID string, active bool) error {
	val := 0
	if active {
		val = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE styles SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		val, strings.ToLower(styleID))
	if err != nil {
		return fmt.Errorf("failed to update style %s: %w", styleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", styles.ErrStyleNotFound, styleID)
	}
	return nil
}

// InsertPrompt adds a versioned prompt record for a style. Versions are
// immutable once written; publishing a change means a new version.
func (s *StyleStore) InsertPrompt(ctx context.Context, styleID, version, positive, negative string) error {
	if version == "" {
		return fmt.Errorf("prompt version is required")
	}
	if positive == "" {
		return fmt.Errorf("positive prompt is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO style_prompts (style_id, version, positive_prompt, negative_prompt)
		VALUES (?, ?, ?, ?)`,
		strings.ToLower(styleID), version, positive, negative)
	if err != nil {
		return fmt.Errorf("failed to insert prompt %s/%s: %w", styleID, version, err)
	}
	return nil
}

// GetPrompt implements styles.PromptStore. An empty version selects the
// newest record for the style.
func (s *StyleStore) GetPrompt(ctx context.Context, styleID, version string) (positive, negative, ver string, found bool, err error) {
	var row *sql.Row
	if version == "" {
		row = s.db.QueryRowContext(ctx, `
			SELECT positive_prompt, negative_prompt, version
			FROM style_prompts
			WHERE style_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1`, strings.ToLower(styleID))
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT positive_prompt, negative_prompt, version
			FROM style_prompts
			WHERE style_id = ? AND version = ?`, strings.ToLower(styleID), version)
	}

	if err := row.Scan(&positive, &negative, &ver); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", "", false, nil
		}
		return "", "", "", false, fmt.Errorf("failed to query prompt %s/%s: %w", styleID, version, err)
	}
	return positive, negative, ver, true, nil
}

var (
	_ styles.Loader      = (*StyleStore)(nil)
	_ styles.PromptStore = (*StyleStore)(nil)
)

// StateCount is one bucket of a journal aggregation.
type StateCount struct {
	State string
	Count int64
}

// JournalStore persists terminal transformation records. Writes go through
// an async writer so the render path never blocks on SQLite; the writer
// drains on shutdown. Reads serve the operator activity endpoints.
type JournalStore struct {
	db     *Database
	writer *AsyncWriter
	logger *zap.Logger
}

// NewJournalStore creates a JournalStore with an async writer.
// Call Start before recording and Stop during shutdown.
func NewJournalStore(db *Database, logger *zap.Logger) *JournalStore {
	j := &JournalStore{
		db:     db,
		logger: logger.Named("journal"),
	}
	j.writer = NewAsyncWriter(func(op WriteOperation) error {
		rec, ok := op.Data.(core.TransformationRecord)
		if !ok {
			return fmt.Errorf("unexpected journal payload %T", op.Data)
		}
		if err := j.insert(context.Background(), rec); err != nil {
			j.logger.Error("journal write failed",
				zap.String("job_id", rec.JobID),
				zap.Error(err))
			return err
		}
		return nil
	})
	return j
}

// Start launches the background write processor.
func (j *JournalStore) Start() { j.writer.Start() }

// Stop drains pending writes and stops the processor.
func (j *JournalStore) Stop() { j.writer.Stop() }

// Pending returns the number of queued, unwritten records.
func (j *JournalStore) Pending() int { return j.writer.Pending() }

// Record queues a terminal record. Non-blocking: if the buffer is full the
// record is written synchronously so nothing is lost, at the cost of one
// slow call on the recording goroutine.
func (j *JournalStore) Record(rec core.TransformationRecord) {
	if j.writer.IsStarted() && j.writer.Write(rec) {
		return
	}
	if err := j.insert(context.Background(), rec); err != nil {
		j.logger.Error("synchronous journal write failed",
			zap.String("job_id", rec.JobID),
			zap.Error(err))
	}
}

func (j *JournalStore) insert(ctx context.Context, rec core.TransformationRecord) error {
	downgraded := 0
	if rec.Downgraded {
		downgraded = 1
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO transformations (
			job_id, client_id, style_id, requested_tier, assigned_tier,
			downgraded, seed, duration_ms, state, error_code, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.ClientID, rec.StyleID, rec.RequestedTier, rec.AssignedTier,
		downgraded, rec.Seed, rec.DurationMs, rec.State, rec.ErrorCode,
		createdAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert transformation: %w", err)
	}
	return nil
}

// QueryRecent returns the newest records, most recent first.
func (j *JournalStore) QueryRecent(ctx context.Context, limit int) ([]core.TransformationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT job_id, client_id, style_id, requested_tier, assigned_tier,
		       downgraded, seed, duration_ms, state, error_code, created_at
		FROM transformations
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transformations: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// QueryByClient returns a client's newest records, most recent first.
func (j *JournalStore) QueryByClient(ctx context.Context, clientID string, limit int) ([]core.TransformationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT job_id, client_id, style_id, requested_tier, assigned_tier,
		       downgraded, seed, duration_ms, state, error_code, created_at
		FROM transformations
		WHERE client_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query client transformations: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountByState aggregates record counts per terminal state since the given
// time. Feeds the operator activity summary.
func (j *JournalStore) CountByState(ctx context.Context, since time.Time) ([]StateCount, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT state, COUNT(*)
		FROM transformations
		WHERE created_at >= ?
		GROUP BY state
		ORDER BY state`, since.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transformations: %w", err)
	}
	defer rows.Close()

	var out []StateCount
	for rows.Next() {
		var sc StateCount
		if err := rows.Scan(&sc.State, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state count iteration failed: %w", err)
	}
	return out, nil
}

func scanRecords(rows *sql.Rows) ([]core.TransformationRecord, error) {
	var out []core.TransformationRecord
	for rows.Next() {
		var rec core.TransformationRecord
		var downgraded int
		var createdAt string
		if err := rows.Scan(&rec.JobID, &rec.ClientID, &rec.StyleID,
			&rec.RequestedTier, &rec.AssignedTier, &downgraded, &rec.Seed,
			&rec.DurationMs, &rec.State, &rec.ErrorCode, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transformation row: %w", err)
		}
		rec.Downgraded = downgraded != 0
		if t, err := time.Parse(sqliteTimeLayout, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transformation iteration failed: %w", err)
	}
	return out, nil
}
