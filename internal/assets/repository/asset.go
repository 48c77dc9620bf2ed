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

const assetColumns = `id, user_id, hostname, ip_address, mac_address, fqdn, asset_type,
	os_name, os_version, os_arch, manufacturer, model, open_ports, services, subnet,
	risk_score, risk_factors, vuln_count, discovery_method, last_seen, first_seen,
	uptime_seconds, status, is_managed, agent_version, tags, vector_context,
	created_at, updated_at`

const upsertAssetSQL = `
	INSERT INTO assets (` + assetColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	ON CONFLICT (user_id, hostname) DO UPDATE SET
		ip_address       = EXCLUDED.ip_address,
		mac_address      = EXCLUDED.mac_address,
		fqdn             = EXCLUDED.fqdn,
		asset_type       = EXCLUDED.asset_type,
		os_name          = EXCLUDED.os_name,
		os_version       = EXCLUDED.os_version,
		os_arch          = EXCLUDED.os_arch,
		manufacturer     = EXCLUDED.manufacturer,
		model            = EXCLUDED.model,
		open_ports       = EXCLUDED.open_ports,
		services         = EXCLUDED.services,
		subnet           = EXCLUDED.subnet,
		risk_score       = EXCLUDED.risk_score,
		risk_factors     = EXCLUDED.risk_factors,
		vuln_count       = EXCLUDED.vuln_count,
		discovery_method = EXCLUDED.discovery_method,
		last_seen        = EXCLUDED.last_seen,
		uptime_seconds   = EXCLUDED.uptime_seconds,
		status           = EXCLUDED.status,
		is_managed       = EXCLUDED.is_managed,
		agent_version    = EXCLUDED.agent_version,
		vector_context   = EXCLUDED.vector_context,
		updated_at       = EXCLUDED.updated_at
	RETURNING id, first_seen, created_at, (xmax = 0) AS inserted`

const insertAssetSQL = `
	INSERT INTO assets (` + assetColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

// AssetRepository stores assets in PostgreSQL.
type AssetRepository struct {
	db DBPool
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db DBPool) *AssetRepository {
	return &AssetRepository{db: db}
}

// Upsert implements AssetStore.
func (r *AssetRepository) Upsert(ctx context.Context, a *model.Asset) (model.UpsertAction, error) {
	prepareNew(a)
	args, err := assetArgs(a)
	if err != nil {
		return "", err
	}

	var inserted bool
	err = r.db.QueryRow(ctx, upsertAssetSQL, args...).Scan(&a.ID, &a.FirstSeen, &a.CreatedAt, &inserted)
	if err != nil {
		return "", fmt.Errorf("upsert asset %q: %w", a.Hostname, err)
	}
	if inserted {
		return model.ActionCreated, nil
	}
	return model.ActionUpdated, nil
}

// Insert implements AssetStore.
func (r *AssetRepository) Insert(ctx context.Context, a *model.Asset) error {
	prepareNew(a)
	args, err := assetArgs(a)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, insertAssetSQL, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert asset %q: %w", a.Hostname, err)
	}
	return nil
}

// GetByID implements AssetStore.
func (r *AssetRepository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*model.Asset, error) {
	rows, err := r.db.Query(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	assets, err := collectAssets(rows)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, ErrNotFound
	}
	return assets[0], nil
}

// List implements AssetStore. Empty filter fields and the value "all" match
// everything; Search is a case-insensitive substring of hostname, IP or OS.
func (r *AssetRepository) List(ctx context.Context, userID string, f model.AssetFilter) ([]*model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets
	          WHERE user_id = $1
	            AND ($2 = '' OR status = $2)
	            AND ($3 = '' OR asset_type = $3)
	            AND ($4 = '' OR hostname ILIKE '%' || $4 || '%'
	                         OR ip_address ILIKE '%' || $4 || '%'
	                         OR os_name ILIKE '%' || $4 || '%')
	          ORDER BY risk_score DESC, hostname`

	rows, err := r.db.Query(ctx, query, userID, allToEmpty(f.Status), allToEmpty(f.Type), f.Search)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return collectAssets(rows)
}

// Delete implements AssetStore.
func (r *AssetRepository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM assets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale implements AssetStore.
func (r *AssetRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*model.Asset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE last_seen < $1 AND status <> $2`,
		cutoff, string(model.AssetStatusInactive))
	if err != nil {
		return nil, fmt.Errorf("list stale assets: %w", err)
	}
	return collectAssets(rows)
}

// MarkInactive implements AssetStore.
func (r *AssetRepository) MarkInactive(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET status = $2, updated_at = $3
		 WHERE id = $1 AND last_seen < $4 AND status <> $2`,
		id, string(model.AssetStatusInactive), time.Now().UTC(), cutoff)
	if err != nil {
		return false, fmt.Errorf("mark asset inactive: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// prepareNew fills the identity and timestamps a brand-new row needs.
// On conflict the database keeps the stored values instead.
func prepareNew(a *model.Asset) {
	now := time.Now().UTC()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.LastSeen.IsZero() {
		a.LastSeen = now
	}
	if a.FirstSeen.IsZero() {
		a.FirstSeen = a.LastSeen
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Tags == nil {
		a.Tags = []string{}
	}
}

func assetArgs(a *model.Asset) ([]any, error) {
	ports, err := marshalJSON(a.OpenPorts, "[]")
	if err != nil {
		return nil, fmt.Errorf("marshal open_ports: %w", err)
	}
	services, err := marshalJSON(a.Services, "[]")
	if err != nil {
		return nil, fmt.Errorf("marshal services: %w", err)
	}
	factors, err := marshalJSON(a.RiskFactors, "{}")
	if err != nil {
		return nil, fmt.Errorf("marshal risk_factors: %w", err)
	}
	var vector []byte
	if a.VectorContext != nil {
		if vector, err = json.Marshal(a.VectorContext); err != nil {
			return nil, fmt.Errorf("marshal vector_context: %w", err)
		}
	}

	return []any{
		a.ID, a.UserID, a.Hostname, a.IPAddress, a.MACAddress, a.FQDN, a.AssetType,
		a.OSName, a.OSVersion, a.OSArch, a.Manufacturer, a.Model, ports, services, a.Subnet,
		a.RiskScore, factors, a.VulnCount, a.DiscoveryMethod, a.LastSeen, a.FirstSeen,
		a.UptimeSeconds, string(a.Status), a.IsManaged, a.AgentVersion, a.Tags, vector,
		a.CreatedAt, a.UpdatedAt,
	}, nil
}

// marshalJSON encodes v, writing empty for nil slices and maps so that
// jsonb columns never hold SQL NULL.
func marshalJSON(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

func collectAssets(rows pgx.Rows) ([]*model.Asset, error) {
	defer rows.Close()

	var out []*model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return out, nil
}

func scanAsset(row pgx.Row) (*model.Asset, error) {
	var (
		a                                model.Asset
		ports, services, factors, vector []byte
		status                           string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Hostname, &a.IPAddress, &a.MACAddress, &a.FQDN, &a.AssetType,
		&a.OSName, &a.OSVersion, &a.OSArch, &a.Manufacturer, &a.Model, &ports, &services, &a.Subnet,
		&a.RiskScore, &factors, &a.VulnCount, &a.DiscoveryMethod, &a.LastSeen, &a.FirstSeen,
		&a.UptimeSeconds, &status, &a.IsManaged, &a.AgentVersion, &a.Tags, &vector,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	a.Status = model.AssetStatus(status)

	if err := unmarshalIfSet(ports, &a.OpenPorts); err != nil {
		return nil, fmt.Errorf("decode open_ports: %w", err)
	}
	if err := unmarshalIfSet(services, &a.Services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	if err := unmarshalIfSet(factors, &a.RiskFactors); err != nil {
		return nil, fmt.Errorf("decode risk_factors: %w", err)
	}
	if len(vector) > 0 {
		a.VectorContext = &model.VectorContext{}
		if err := json.Unmarshal(vector, a.VectorContext); err != nil {
			return nil, fmt.Errorf("decode vector_context: %w", err)
		}
	}
	return &a, nil
}

func unmarshalIfSet(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func allToEmpty(s string) string {
	if s == "all" {
		return ""
	}
	return s
}
