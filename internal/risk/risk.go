// Package risk converts raw per-asset observations into a bounded,
// comparable 0–100 risk score.
//
// Two scorers are provided:
//   - ComputeRiskScore: the legacy 5-factor scorer (ports, OS age,
//     privilege, recency, vulnerability count).
//   - BuildVectorScores + ComputeVectorScore: the 13-dimension vector scorer.
//
// Score dispatches between them from a single Input value. Scoring functions
// are total: missing or malformed sub-fields contribute zero points and never
// produce an error.
package risk

import (
	"math"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// MaxScore is the upper bound of every final score.
const MaxScore = 100

// Level is the display classification of a score.
type Level struct {
	Label      string `json:"label"`
	ColorClass string `json:"color"`
	BgClass    string `json:"bg"`
}

// GetRiskLevel maps a 0–100 score to a display level:
//
//	75–100 → Critical
//	50–74  → High
//	25–49  → Medium
//	0–24   → Low
//
// These bands are independent of DeriveStatus, which uses 50/75 only.
func GetRiskLevel(score int) Level {
	switch {
	case score >= 75:
		return Level{Label: "Critical", ColorClass: "text-red-400", BgClass: "bg-red-500/20"}
	case score >= 50:
		return Level{Label: "High", ColorClass: "text-orange-400", BgClass: "bg-orange-500/20"}
	case score >= 25:
		return Level{Label: "Medium", ColorClass: "text-yellow-400", BgClass: "bg-yellow-500/20"}
	default:
		return Level{Label: "Low", ColorClass: "text-green-400", BgClass: "bg-green-500/20"}
	}
}

// DeriveStatus maps a score to the operational asset status used at ingestion.
func DeriveStatus(score int) model.AssetStatus {
	switch {
	case score >= 75:
		return model.AssetStatusCritical
	case score >= 50:
		return model.AssetStatusWarning
	default:
		return model.AssetStatusActive
	}
}

// roundScore rounds half to even so 4.5 becomes 4 and 5.5 becomes 6.
func roundScore(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.RoundToEven(v))
}

// capAt clamps v into [0, max].
func capAt(v, max float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// clampTotal clamps an integer total into [0, MaxScore].
func clampTotal(total int) int {
	if total < 0 {
		return 0
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}
