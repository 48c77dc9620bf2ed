package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/assets/repository"
)

func TestSeedAssets_idempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAssetStore()

	var out bytes.Buffer
	first, err := seedAssets(ctx, store, "demo-user", &out, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, first, len(demoAssets()))
	for _, r := range first {
		assert.Equal(t, model.ActionCreated, r.Action, r.Asset.Hostname)
	}
	assert.Contains(t, out.String(), "db-legacy")

	second, err := seedAssets(ctx, store, "demo-user", &bytes.Buffer{}, zap.NewNop())
	require.NoError(t, err)
	for i, r := range second {
		assert.Equal(t, model.ActionUpdated, r.Action, r.Asset.Hostname)
		assert.Equal(t, first[i].RiskScore, r.RiskScore, r.Asset.Hostname)
	}

	listed, err := store.List(ctx, "demo-user", model.AssetFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, len(demoAssets()))
}

func TestSeedAssets_scorerSelection(t *testing.T) {
	results, err := seedAssets(context.Background(), repository.NewMemoryAssetStore(), "demo-user", &bytes.Buffer{}, zap.NewNop())
	require.NoError(t, err)

	byHost := map[string]int{}
	for i, r := range results {
		byHost[r.Asset.Hostname] = i
	}

	legacy := results[byHost["web-prod-01"]].Asset
	assert.Len(t, legacy.RiskFactors, 5)
	assert.Nil(t, legacy.VectorContext)

	vector := results[byHost["dc01"]].Asset
	assert.Len(t, vector.RiskFactors, 13)
	require.NotNil(t, vector.VectorContext)
	assert.Equal(t, vector.RiskScore, vector.VectorContext.VectorScore)

	assert.Greater(t, results[byHost["db-legacy"]].RiskScore, results[byHost["laptop-jdoe"]].RiskScore)
}
