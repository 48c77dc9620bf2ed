package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/assets/repository"
	"github.com/jmerrifield20/riskengine/internal/directory"
	"github.com/jmerrifield20/riskengine/internal/risk"
)

// defaultArch is recorded when an agent does not report its architecture.
const defaultArch = "x86_64"

// IngestResult is returned by Ingest.
type IngestResult struct {
	Asset     *model.Asset
	Action    model.UpsertAction
	RiskScore int
}

// HeartbeatService scores agent heartbeats and keeps the asset inventory.
type HeartbeatService struct {
	store    repository.AssetStore
	enricher *directory.Enricher // nil = no directory enrichment
	now      func() time.Time
	logger   *zap.Logger
}

// NewHeartbeatService creates a new HeartbeatService.
func NewHeartbeatService(store repository.AssetStore, logger *zap.Logger) *HeartbeatService {
	return &HeartbeatService{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetEnricher configures directory enrichment of identity and privilege
// dimensions before scoring. Set to nil to disable.
func (s *HeartbeatService) SetEnricher(e *directory.Enricher) {
	s.enricher = e
}

// SetClock replaces the time source used for last_seen and recency scoring.
func (s *HeartbeatService) SetClock(now func() time.Time) {
	s.now = now
}

// Ingest validates and scores a heartbeat, then upserts the asset keyed by
// (userID, hostname). Repeating the same heartbeat updates the one row.
func (s *HeartbeatService) Ingest(ctx context.Context, userID string, p *model.HeartbeatPayload) (*IngestResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &model.ErrUnauthorized{Msg: "x-user-id header required"}
	}
	if p == nil || p.Hostname == "" || p.IPAddress == "" {
		return nil, &model.ErrValidation{Msg: "hostname and ip_address required"}
	}

	now := s.now()
	res := s.Score(ctx, p, now)
	a := s.buildAsset(userID, p, res, now)

	action, err := s.store.Upsert(ctx, a)
	if err != nil {
		s.logger.Warn("asset upsert failed, retrying as insert",
			zap.String("hostname", a.Hostname),
			zap.Error(err),
		)
		a.FirstSeen = now
		if err := s.store.Insert(ctx, a); err != nil {
			return nil, fmt.Errorf("persist asset %q: %w", a.Hostname, err)
		}
		action = model.ActionCreated
	}

	s.logger.Info("heartbeat ingested",
		zap.String("user_id", userID),
		zap.String("hostname", a.Hostname),
		zap.String("action", string(action)),
		zap.Int("risk_score", res.Score),
		zap.String("status", string(res.Status)),
	)

	return &IngestResult{Asset: a, Action: action, RiskScore: res.Score}, nil
}

// Score computes the risk of a heartbeat without persisting anything.
// Directory enrichment runs on a copy; p is never modified.
func (s *HeartbeatService) Score(ctx context.Context, p *model.HeartbeatPayload, now time.Time) risk.Result {
	scored := *p
	if p.VectorContext.HasDimensions() && s.enricher != nil {
		scored.VectorContext = p.VectorContext.Clone()
		s.enricher.Enrich(ctx, scored.VectorContext, p.Hostname)
	}
	return risk.Score(risk.InputFromHeartbeat(&scored, now))
}

func (s *HeartbeatService) buildAsset(userID string, p *model.HeartbeatPayload, res risk.Result, now time.Time) *model.Asset {
	assetType := p.AssetType
	if assetType == "" {
		assetType = model.AssetTypeEndpoint
	}
	arch := p.OSArch
	if arch == "" {
		arch = defaultArch
	}
	return &model.Asset{
		UserID:          userID,
		Hostname:        p.Hostname,
		IPAddress:       p.IPAddress,
		MACAddress:      model.StrPtr(p.MACAddress),
		FQDN:            model.StrPtr(p.FQDN),
		AssetType:       assetType,
		OSName:          model.StrPtr(p.OSName),
		OSVersion:       model.StrPtr(p.OSVersion),
		OSArch:          &arch,
		Manufacturer:    model.StrPtr(p.Manufacturer),
		Model:           model.StrPtr(p.Model),
		OpenPorts:       p.OpenPorts,
		Services:        p.Services,
		RiskScore:       res.Score,
		RiskFactors:     res.Factors,
		VulnCount:       p.VulnCount,
		DiscoveryMethod: model.DiscoveryAgent,
		LastSeen:        now,
		UptimeSeconds:   p.UptimeSeconds,
		Status:          res.Status,
		IsManaged:       true,
		AgentVersion:    model.StrPtr(p.AgentVersion),
		VectorContext:   res.Context,
	}
}

// List returns the owner's assets, highest risk first.
func (s *HeartbeatService) List(ctx context.Context, userID string, f model.AssetFilter) ([]*model.Asset, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &model.ErrValidation{Msg: "user_id required"}
	}
	assets, err := s.store.List(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	if assets == nil {
		assets = []*model.Asset{}
	}
	return assets, nil
}

// Get returns one of the owner's assets by ID. Another owner's asset is
// reported as repository.ErrNotFound.
func (s *HeartbeatService) Get(ctx context.Context, userID string, id uuid.UUID) (*model.Asset, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &model.ErrValidation{Msg: "user_id required"}
	}
	return s.store.GetByID(ctx, userID, id)
}

// Delete removes one of the owner's assets. Assets are deleted only by
// explicit operator action.
func (s *HeartbeatService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if strings.TrimSpace(userID) == "" {
		return &model.ErrValidation{Msg: "user_id required"}
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("asset deleted", zap.String("id", id.String()), zap.String("user_id", userID))
	return nil
}
