package risk

import (
	"time"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// Input is what Score consumes: either Legacy or Vector.
type Input interface {
	isInput()
}

// Legacy selects the 5-factor scorer.
type Legacy struct {
	LegacyInput
}

// Vector selects the 13-dimension scorer. Context holds raw, unscored
// dimensions; Score computes every dimension score itself.
type Vector struct {
	Context *model.VectorContext
}

func (Legacy) isInput() {}
func (Vector) isInput() {}

// Result is the outcome of Score.
type Result struct {
	Score   int
	Factors model.RiskFactors
	Status  model.AssetStatus

	// Context is the scored vector context; nil for legacy inputs.
	Context *model.VectorContext
}

// Score runs the scorer selected by in and derives the asset status from
// the final score.
func Score(in Input) Result {
	var res Result
	switch v := in.(type) {
	case Legacy:
		res.Score, res.Factors = ComputeRiskScore(v.LegacyInput)
	case Vector:
		res.Context = BuildVectorScores(v.Context)
		if res.Context == nil {
			res.Context = &model.VectorContext{}
		}
		res.Score, res.Factors = ComputeVectorScore(res.Context)
	default:
		res.Factors = model.RiskFactors{}
	}
	res.Status = DeriveStatus(res.Score)
	return res
}

// InputFromHeartbeat chooses the vector scorer when the payload carries at
// least one dimension, and the legacy scorer otherwise. Agents that do not
// report an asset type are scored as endpoints.
func InputFromHeartbeat(p *model.HeartbeatPayload, now time.Time) Input {
	if p.VectorContext.HasDimensions() {
		return Vector{Context: p.VectorContext}
	}
	assetType := p.AssetType
	if assetType == "" {
		assetType = model.AssetTypeEndpoint
	}
	return Legacy{LegacyInput{
		OpenPorts:    p.OpenPorts,
		OSName:       p.OSName,
		OSVersion:    p.OSVersion,
		LastSeen:     now,
		VulnCount:    p.VulnCount,
		AssetType:    assetType,
		IsPrivileged: p.IsPrivileged,
		Now:          now,
	}}
}
