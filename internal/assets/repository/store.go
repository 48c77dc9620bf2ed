package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

var (
	// ErrNotFound is returned when an asset or scan does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned by Insert when (user_id, hostname) already exists.
	ErrDuplicate = errors.New("asset already exists for this hostname")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DBPool is the subset of *pgxpool.Pool the repositories use, so tests can
// substitute pgxmock.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AssetStore persists assets keyed by (user_id, hostname).
// AssetRepository and MemoryAssetStore implement it.
type AssetStore interface {
	// Upsert atomically inserts the asset or updates the existing row for the
	// same (user_id, hostname). FirstSeen and CreatedAt of an existing row are
	// preserved. On return a.ID, a.FirstSeen and a.CreatedAt reflect the stored row.
	Upsert(ctx context.Context, a *model.Asset) (model.UpsertAction, error)

	// Insert adds a new row and fails with ErrDuplicate if the key exists.
	Insert(ctx context.Context, a *model.Asset) error

	// GetByID returns the asset only when it belongs to userID; any other
	// owner sees ErrNotFound.
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*model.Asset, error)

	// List returns the owner's assets ordered by risk score, highest first.
	List(ctx context.Context, userID string, filter model.AssetFilter) ([]*model.Asset, error)

	// Delete removes the owner's asset, or returns ErrNotFound.
	Delete(ctx context.Context, userID string, id uuid.UUID) error

	// ListStale returns assets last seen before cutoff that are not yet inactive.
	ListStale(ctx context.Context, cutoff time.Time) ([]*model.Asset, error)

	// MarkInactive sets the asset inactive only if it is still last seen
	// before cutoff and not already inactive. The check and the write are one
	// step, so a heartbeat that lands after ListStale wins. It reports
	// whether the row changed.
	MarkInactive(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
}

// ScanStore persists discovery scan records and their append-only log.
// ScanRepository and MemoryScanStore implement it.
type ScanStore interface {
	Create(ctx context.Context, s *model.AssetScan) error
	AppendLog(ctx context.Context, id uuid.UUID, entry model.ScanLogEntry) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	Finish(ctx context.Context, id uuid.UUID, result model.ScanResult) error
	// GetByID returns the scan only when it was started by userID.
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*model.AssetScan, error)
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
