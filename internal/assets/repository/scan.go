package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// ScanRepository stores discovery scan records in PostgreSQL.
type ScanRepository struct {
	db DBPool
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db DBPool) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create implements ScanStore.
func (r *ScanRepository) Create(ctx context.Context, s *model.AssetScan) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.CreatedAt = now
	if s.LogEntries == nil {
		s.LogEntries = []model.ScanLogEntry{}
	}
	logs, err := json.Marshal(s.LogEntries)
	if err != nil {
		return fmt.Errorf("marshal log_entries: %w", err)
	}

	query := `
		INSERT INTO asset_scans (
			id, user_id, scan_type, status, target_subnet, started_at,
			progress, log_entries, triggered_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		s.ID, s.UserID, s.ScanType, string(s.Status), s.TargetSubnet, s.StartedAt,
		s.Progress, logs, s.TriggeredBy, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

// AppendLog implements ScanStore. Entries are appended to the jsonb array
// in place so concurrent readers always see a prefix of the log.
func (r *ScanRepository) AppendLog(ctx context.Context, id uuid.UUID, entry model.ScanLogEntry) error {
	b, err := json.Marshal([]model.ScanLogEntry{entry})
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE asset_scans SET log_entries = log_entries || $2::jsonb WHERE id = $1`,
		id, b)
	if err != nil {
		return fmt.Errorf("append scan log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress implements ScanStore. Progress never moves backwards.
func (r *ScanRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE asset_scans SET progress = GREATEST(progress, $2) WHERE id = $1`,
		id, progress)
	if err != nil {
		return fmt.Errorf("update scan progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish implements ScanStore.
func (r *ScanRepository) Finish(ctx context.Context, id uuid.UUID, res model.ScanResult) error {
	query := `
		UPDATE asset_scans SET
			status = $2, assets_found = $3, assets_new = $4, assets_updated = $5,
			progress = GREATEST(progress, $6), completed_at = $7
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		id, string(res.Status), res.AssetsFound, res.AssetsNew, res.AssetsUpdated,
		res.Progress, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID implements ScanStore.
func (r *ScanRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*model.AssetScan, error) {
	query := `
		SELECT id, user_id, scan_type, status, target_subnet, started_at, completed_at,
		       assets_found, assets_new, assets_updated, progress, log_entries,
		       triggered_by, created_at
		FROM asset_scans WHERE id = $1 AND user_id = $2`

	var (
		s      model.AssetScan
		status string
		logs   []byte
	)
	err := r.db.QueryRow(ctx, query, id, userID).Scan(
		&s.ID, &s.UserID, &s.ScanType, &status, &s.TargetSubnet, &s.StartedAt, &s.CompletedAt,
		&s.AssetsFound, &s.AssetsNew, &s.AssetsUpdated, &s.Progress, &logs,
		&s.TriggeredBy, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}
	s.Status = model.ScanStatus(status)
	if err := unmarshalIfSet(logs, &s.LogEntries); err != nil {
		return nil, fmt.Errorf("decode log_entries: %w", err)
	}
	return &s, nil
}
