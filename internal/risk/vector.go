package risk

import (
	"math"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

// MaxScores is the per-dimension upper bound. The values sum to 100.
var MaxScores = map[string]int{
	model.DimNetwork:       8,
	model.DimIdentity:      8,
	model.DimBehavior:      8,
	model.DimTemporal:      5,
	model.DimThreatIntel:   15,
	model.DimVulnerability: 12,
	model.DimCriticality:   10,
	model.DimCompliance:    7,
	model.DimGeo:           3,
	model.DimTraffic:       5,
	model.DimApplication:   7,
	model.DimPatch:         8,
	model.DimPrivilege:     4,
}

// BuildVectorScores returns a copy of raw with the Score of every present
// dimension computed from its raw fields. Absent dimensions stay nil.
// The input is never modified.
func BuildVectorScores(raw *model.VectorContext) *model.VectorContext {
	if raw == nil {
		return nil
	}
	v := raw.Clone()

	if d := v.D1Network; d != nil {
		d.Score = bounded(model.DimNetwork, scoreNetwork(d))
	}
	if d := v.D2Identity; d != nil {
		d.Score = bounded(model.DimIdentity, scoreIdentity(d))
	}
	if d := v.D3Behavior; d != nil {
		d.Score = bounded(model.DimBehavior, scoreBehavior(d))
	}
	if d := v.D4Temporal; d != nil {
		d.Score = bounded(model.DimTemporal, scoreTemporal(d))
	}
	if d := v.D5ThreatIntel; d != nil {
		d.Score = bounded(model.DimThreatIntel, scoreThreatIntel(d))
	}
	if d := v.D6Vulnerability; d != nil {
		d.Score = bounded(model.DimVulnerability, scoreVulnerability(d))
	}
	if d := v.D7Criticality; d != nil {
		d.Score = bounded(model.DimCriticality, scoreCriticality(d))
	}
	if d := v.D8Compliance; d != nil {
		d.Score = bounded(model.DimCompliance, scoreCompliance(d))
	}
	if d := v.D9Geo; d != nil {
		d.Score = bounded(model.DimGeo, scoreGeo(d))
	}
	if d := v.D10Traffic; d != nil {
		d.Score = bounded(model.DimTraffic, scoreTraffic(d))
	}
	if d := v.D11Application; d != nil {
		d.Score = bounded(model.DimApplication, scoreApplication(d))
	}
	if d := v.D12Patch; d != nil {
		d.Score = bounded(model.DimPatch, scorePatch(d))
	}
	if d := v.D13Privilege; d != nil {
		d.Score = bounded(model.DimPrivilege, scorePrivilege(d))
	}

	v.VectorScore, _ = ComputeVectorScore(v)
	return v
}

// ComputeVectorScore sums the Score of every dimension, counting absent
// dimensions as zero, and clamps the total to 100. The factors map always
// carries all 13 dimension keys.
func ComputeVectorScore(v *model.VectorContext) (int, model.RiskFactors) {
	factors := make(model.RiskFactors, len(model.DimensionKeys))
	for _, key := range model.DimensionKeys {
		factors[key] = 0
	}
	for _, d := range v.Present() {
		s := d.Score
		if max := MaxScores[d.Key]; s > max {
			s = max
		}
		if s < 0 {
			s = 0
		}
		factors[d.Key] = s
	}
	return clampTotal(factors.Sum()), factors
}

// bounded clamps a raw point total to the dimension maximum and rounds it.
func bounded(key string, points float64) int {
	return roundScore(capAt(points, float64(MaxScores[key])))
}

func minf(a, b float64) float64 {
	return math.Min(a, b)
}

func scoreNetwork(d *model.NetworkDimension) float64 {
	var pts float64
	switch d.NetworkZone {
	case "external", "dmz":
		pts += 3
	case "cloud":
		pts += 2
	}
	switch {
	case d.ActiveConnections > 50:
		pts += 3
	case d.ActiveConnections > 20:
		pts += 2
	case d.ActiveConnections > 5:
		pts++
	}
	if d.Gateway == nil || *d.Gateway == "" {
		pts++
	}
	if d.IsWifi {
		pts++
	}
	return pts
}

func scoreIdentity(d *model.IdentityDimension) float64 {
	var pts float64
	switch admins := len(d.AdminUsers); {
	case admins > 3:
		pts += 3
	case admins > 1:
		pts += 2
	case admins == 1:
		pts++
	}
	switch {
	case d.MFAEnabled == nil:
		pts++
	case !*d.MFAEnabled:
		pts += 3
	}
	if d.ADDomain == nil || *d.ADDomain == "" {
		pts += 2
	} else {
		pts++
	}
	return pts
}

func scoreBehavior(d *model.BehaviorDimension) float64 {
	var pts float64
	switch {
	case d.FailedLogins24h > 10:
		pts += 4
	case d.FailedLogins24h > 3:
		pts += 2
	case d.FailedLogins24h > 0:
		pts++
	}
	switch {
	case d.LoadAverage > 4:
		pts += 2
	case d.LoadAverage > 2:
		pts++
	}
	pts += minf(2, float64(len(d.SuspiciousProcesses)))
	return pts
}

func scoreTemporal(d *model.TemporalDimension) float64 {
	var pts float64
	if d.IsBusinessHours != nil && !*d.IsBusinessHours {
		pts += 2
	}
	switch {
	case d.UptimeDays > 180:
		pts += 3
	case d.UptimeDays > 90:
		pts += 2
	case d.UptimeDays > 30:
		pts++
	}
	return pts
}

func scoreThreatIntel(d *model.ThreatIntelDimension) float64 {
	cves := d.CVECount
	if n := len(d.KnownCVEs); n > cves {
		cves = n
	}
	return capAt(float64(cves)*2, 8) +
		capAt(float64(d.ThreatFeedHits)*2, 4) +
		capAt(float64(d.MalwareIndicators)*3, 3)
}

func scoreVulnerability(d *model.VulnerabilityDimension) float64 {
	pts := capAt(float64(len(d.DangerousPortsOpen))*2, 5) +
		capAt(float64(d.TotalOpenPorts)*0.5, 3) +
		capAt(float64(d.UnpatchedCritical)*2, 4)
	if d.ExploitAvailable {
		pts += 2
	}
	return pts
}

var (
	impactPoints = map[string]float64{
		"critical": 4, "high": 3, "medium": 2, "low": 1,
	}
	classificationPoints = map[string]float64{
		"top-secret": 4, "confidential": 3, "internal": 2, "public": 0,
	}
)

func scoreCriticality(d *model.CriticalityDimension) float64 {
	pts := impactPoints[d.BusinessImpact] + classificationPoints[d.DataClassification]
	if d.IsInternetFacing {
		pts++
	}
	if d.HandlesPII {
		pts++
	}
	return pts
}

func scoreCompliance(d *model.ComplianceDimension) float64 {
	pts := minf(3, float64(len(d.PolicyViolations)))
	if isFalse(d.FirewallEnabled) {
		pts += 2
	}
	if isFalse(d.AVPresent) {
		pts++
	}
	if isFalse(d.EncryptionEnabled) {
		pts++
	}
	return pts
}

func scoreGeo(d *model.GeoDimension) float64 {
	var pts float64
	if d.IsVPN {
		pts++
	}
	if isFalse(d.IsKnownLocation) {
		pts += 2
	}
	return pts
}

func scoreTraffic(d *model.TrafficDimension) float64 {
	var pts float64
	switch {
	case d.ActiveTCPConnections > 100:
		pts += 2
	case d.ActiveTCPConnections > 30:
		pts++
	}
	switch {
	case d.BytesSentMB > 1000:
		pts += 2
	case d.BytesSentMB > 100:
		pts++
	}
	if d.ListeningPorts > 20 {
		pts++
	}
	return pts
}

func scoreApplication(d *model.ApplicationDimension) float64 {
	pts := minf(2, float64(len(d.SuspiciousApps)))
	if len(d.RemoteAccessTools) > 0 {
		pts += 2
	}
	if d.CryptoMiningRisk {
		pts += 3
	}
	return pts
}

func scorePatch(d *model.PatchDimension) float64 {
	var pts float64
	switch d.EOLStatus {
	case "eol":
		pts += 4
	case "extended":
		pts += 2
	}
	if d.DaysSinceUpdate != nil {
		switch days := *d.DaysSinceUpdate; {
		case days > 90:
			pts += 3
		case days > 30:
			pts += 2
		case days > 7:
			pts++
		}
	}
	if d.PendingUpdates > 0 {
		pts += minf(1, math.Floor(float64(d.PendingUpdates)/10))
	}
	return pts
}

func scorePrivilege(d *model.PrivilegeDimension) float64 {
	var pts float64
	if d.RootLoginEnabled {
		pts += 2
	}
	if d.IsAdmin {
		pts++
	}
	if len(d.SudoUsers) > 3 {
		pts++
	}
	return pts
}

// isFalse is true only for an explicit false; absent values score nothing.
func isFalse(b *bool) bool {
	return b != nil && !*b
}
