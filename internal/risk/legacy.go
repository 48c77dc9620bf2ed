package risk

import (
	"strings"
	"time"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// Per-factor maxima of the legacy scorer.
const (
	maxPortRisk      = 25
	maxOSRisk        = 20
	maxPrivilegeRisk = 20
	maxRecencyRisk   = 15
	maxVulnRisk      = 20

	defaultOSRisk   = 5
	defaultTypeRisk = 10
)

// dangerousPorts are services commonly abused for lateral movement or data theft.
var dangerousPorts = map[int]bool{
	21: true, 23: true, 135: true, 139: true, 445: true, 1433: true,
	3306: true, 3389: true, 5432: true, 6379: true, 27017: true,
}

// IsDangerousPort reports whether port is in the dangerous set.
func IsDangerousPort(port int) bool {
	return dangerousPorts[port]
}

// osRule assigns a risk to any OS name containing one of its needles.
type osRule struct {
	needles []string
	risk    float64
}

// osLadder is checked top to bottom; the first match wins, so the most
// severe (end-of-life) systems come first.
var osLadder = []osRule{
	{needles: []string{"windows xp", "windows 7", "server 2008"}, risk: maxOSRisk},
	{needles: []string{"windows 8", "server 2012"}, risk: 15},
	{needles: []string{"centos 6", "ubuntu 16", "ubuntu 18"}, risk: 12},
	{needles: []string{"windows 10", "ubuntu 20", "server 2016"}, risk: 7},
	{needles: []string{"windows 11", "ubuntu 22", "ubuntu 24", "server 2022"}, risk: 3},
}

var typeRisk = map[string]float64{
	model.AssetTypeServer:   15,
	model.AssetTypeDatabase: 18,
	model.AssetTypeNetwork:  14,
	model.AssetTypeCloud:    10,
	model.AssetTypeEndpoint: 8,
	model.AssetTypeIoT:      16,
	model.AssetTypeUnknown:  12,
}

// LegacyInput carries the observations consumed by the 5-factor scorer.
type LegacyInput struct {
	OpenPorts    []model.PortInfo
	OSName       string
	OSVersion    string
	LastSeen     time.Time
	VulnCount    int
	AssetType    string
	IsPrivileged bool

	// Now is the reference time for recency; zero means time.Now().
	Now time.Time
}

// ComputeRiskScore runs the legacy 5-factor scorer. Each factor is clamped
// to its maximum and rounded; the score is the clamped sum of the rounded
// factors, so it always equals RiskFactors.Sum() (up to the 100 cap).
func ComputeRiskScore(in LegacyInput) (int, model.RiskFactors) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	factors := model.RiskFactors{
		model.FactorOpenPorts: roundScore(PortRisk(in.OpenPorts)),
		model.FactorOSAge:     roundScore(OSRisk(in.OSName)),
		model.FactorPrivilege: roundScore(PrivilegeRisk(in.AssetType, in.IsPrivileged)),
		model.FactorRecency:   roundScore(RecencyRisk(now.Sub(in.LastSeen))),
		model.FactorVulnCount: roundScore(VulnRisk(in.VulnCount)),
	}
	return clampTotal(factors.Sum()), factors
}

// PortRisk scores the open-port surface: 1.5 per open port plus 4 per open
// dangerous port, capped at 25. Only ports in state "open" count.
func PortRisk(ports []model.PortInfo) float64 {
	open, dangerous := 0, 0
	for _, p := range ports {
		if p.State != model.PortStateOpen {
			continue
		}
		open++
		if dangerousPorts[p.Port] {
			dangerous++
		}
	}
	return capAt(float64(open)*1.5+float64(dangerous)*4, maxPortRisk)
}

// OSRisk scores the operating system by age. Unknown names score 5.
func OSRisk(osName string) float64 {
	if osName == "" {
		return defaultOSRisk
	}
	name := strings.ToLower(osName)
	for _, rule := range osLadder {
		for _, n := range rule.needles {
			if strings.Contains(name, n) {
				return rule.risk
			}
		}
	}
	return defaultOSRisk
}

// PrivilegeRisk scores the asset's blast radius. Privileged assets score
// the maximum; others are scored by asset type.
func PrivilegeRisk(assetType string, privileged bool) float64 {
	if privileged {
		return maxPrivilegeRisk
	}
	if r, ok := typeRisk[assetType]; ok {
		return r
	}
	return defaultTypeRisk
}

// RecencyRisk scores how stale the last observation is.
func RecencyRisk(sinceLastSeen time.Duration) float64 {
	hours := sinceLastSeen.Hours()
	switch {
	case hours > 168:
		return maxRecencyRisk
	case hours > 72:
		return 10
	case hours > 24:
		return 6
	case hours > 4:
		return 2
	default:
		return 0
	}
}

// VulnRisk scores known vulnerabilities at 3 points each, capped at 20.
func VulnRisk(vulnCount int) float64 {
	return capAt(float64(vulnCount)*3, maxVulnRisk)
}
