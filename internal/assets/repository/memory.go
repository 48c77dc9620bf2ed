package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// MemoryAssetStore is an in-memory, thread-safe AssetStore. It is used in
// tests and when riskd runs without a database URL.
type MemoryAssetStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*model.Asset
	byKey map[string]uuid.UUID
}

// NewMemoryAssetStore creates an empty MemoryAssetStore.
func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{
		byID:  make(map[uuid.UUID]*model.Asset),
		byKey: make(map[string]uuid.UUID),
	}
}

func naturalKey(userID, hostname string) string {
	return userID + "\x00" + hostname
}

// Upsert implements AssetStore.
func (m *MemoryAssetStore) Upsert(_ context.Context, a *model.Asset) (model.UpsertAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareNew(a)
	key := naturalKey(a.UserID, a.Hostname)
	if id, ok := m.byKey[key]; ok {
		existing := m.byID[id]
		a.ID = existing.ID
		a.FirstSeen = existing.FirstSeen
		a.CreatedAt = existing.CreatedAt
		a.Tags = existing.Tags
		m.byID[id] = cloneAsset(a)
		return model.ActionUpdated, nil
	}

	m.byKey[key] = a.ID
	m.byID[a.ID] = cloneAsset(a)
	return model.ActionCreated, nil
}

// Insert implements AssetStore.
func (m *MemoryAssetStore) Insert(_ context.Context, a *model.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := naturalKey(a.UserID, a.Hostname)
	if _, ok := m.byKey[key]; ok {
		return ErrDuplicate
	}
	prepareNew(a)
	m.byKey[key] = a.ID
	m.byID[a.ID] = cloneAsset(a)
	return nil
}

// GetByID implements AssetStore.
func (m *MemoryAssetStore) GetByID(_ context.Context, userID string, id uuid.UUID) (*model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneAsset(a), nil
}

// List implements AssetStore.
func (m *MemoryAssetStore) List(_ context.Context, userID string, f model.AssetFilter) ([]*model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, typ := allToEmpty(f.Status), allToEmpty(f.Type)
	search := strings.ToLower(f.Search)

	var out []*model.Asset
	for _, a := range m.byID {
		if a.UserID != userID {
			continue
		}
		if status != "" && string(a.Status) != status {
			continue
		}
		if typ != "" && a.AssetType != typ {
			continue
		}
		if search != "" && !matchesSearch(a, search) {
			continue
		}
		out = append(out, cloneAsset(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].Hostname < out[j].Hostname
	})
	return out, nil
}

func matchesSearch(a *model.Asset, needle string) bool {
	if strings.Contains(strings.ToLower(a.Hostname), needle) ||
		strings.Contains(strings.ToLower(a.IPAddress), needle) {
		return true
	}
	return a.OSName != nil && strings.Contains(strings.ToLower(*a.OSName), needle)
}

// Delete implements AssetStore.
func (m *MemoryAssetStore) Delete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	delete(m.byKey, naturalKey(a.UserID, a.Hostname))
	delete(m.byID, id)
	return nil
}

// ListStale implements AssetStore.
func (m *MemoryAssetStore) ListStale(_ context.Context, cutoff time.Time) ([]*model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Asset
	for _, a := range m.byID {
		if a.LastSeen.Before(cutoff) && a.Status != model.AssetStatusInactive {
			out = append(out, cloneAsset(a))
		}
	}
	return out, nil
}

// MarkInactive implements AssetStore.
func (m *MemoryAssetStore) MarkInactive(_ context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || !a.LastSeen.Before(cutoff) || a.Status == model.AssetStatusInactive {
		return false, nil
	}
	a.Status = model.AssetStatusInactive
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

// Len returns the number of stored assets.
func (m *MemoryAssetStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// cloneAsset deep-copies an asset so callers never share state with the store.
func cloneAsset(a *model.Asset) *model.Asset {
	cp := *a
	cp.OpenPorts = append([]model.PortInfo(nil), a.OpenPorts...)
	cp.Services = append([]model.ServiceInfo(nil), a.Services...)
	cp.Tags = append([]string{}, a.Tags...)
	if a.RiskFactors != nil {
		cp.RiskFactors = make(model.RiskFactors, len(a.RiskFactors))
		for k, v := range a.RiskFactors {
			cp.RiskFactors[k] = v
		}
	}
	cp.VectorContext = a.VectorContext.Clone()
	return &cp
}

// MemoryScanStore is an in-memory, thread-safe ScanStore.
type MemoryScanStore struct {
	mu    sync.RWMutex
	scans map[uuid.UUID]*model.AssetScan
}

// NewMemoryScanStore creates an empty MemoryScanStore.
func NewMemoryScanStore() *MemoryScanStore {
	return &MemoryScanStore{scans: make(map[uuid.UUID]*model.AssetScan)}
}

// Create implements ScanStore.
func (m *MemoryScanStore) Create(_ context.Context, s *model.AssetScan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.scans[s.ID] = cloneScan(s)
	return nil
}

// AppendLog implements ScanStore.
func (m *MemoryScanStore) AppendLog(_ context.Context, id uuid.UUID, entry model.ScanLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return ErrNotFound
	}
	s.LogEntries = append(s.LogEntries, entry)
	return nil
}

// UpdateProgress implements ScanStore.
func (m *MemoryScanStore) UpdateProgress(_ context.Context, id uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return ErrNotFound
	}
	if progress > s.Progress {
		s.Progress = progress
	}
	return nil
}

// Finish implements ScanStore.
func (m *MemoryScanStore) Finish(_ context.Context, id uuid.UUID, res model.ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	s.Status = res.Status
	s.AssetsFound = res.AssetsFound
	s.AssetsNew = res.AssetsNew
	s.AssetsUpdated = res.AssetsUpdated
	if res.Progress > s.Progress {
		s.Progress = res.Progress
	}
	s.CompletedAt = &now
	return nil
}

// GetByID implements ScanStore.
func (m *MemoryScanStore) GetByID(_ context.Context, userID string, id uuid.UUID) (*model.AssetScan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scans[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return cloneScan(s), nil
}

func cloneScan(s *model.AssetScan) *model.AssetScan {
	cp := *s
	cp.LogEntries = append([]model.ScanLogEntry{}, s.LogEntries...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
