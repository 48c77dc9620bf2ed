package risk_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/risk"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

// saturated returns a context where every dimension reaches its maximum.
func saturated() *model.VectorContext {
	return &model.VectorContext{
		D1Network:  &model.NetworkDimension{NetworkZone: "external", ActiveConnections: 60, IsWifi: true},
		D2Identity: &model.IdentityDimension{AdminUsers: []string{"a", "b", "c", "d"}, MFAEnabled: boolPtr(false)},
		D3Behavior: &model.BehaviorDimension{FailedLogins24h: 11, LoadAverage: 5, SuspiciousProcesses: []string{"nc", "xmrig", "mimikatz"}},
		D4Temporal: &model.TemporalDimension{UptimeDays: 200, IsBusinessHours: boolPtr(false)},
		D5ThreatIntel: &model.ThreatIntelDimension{
			KnownCVEs: []string{"CVE-2024-1", "CVE-2024-2", "CVE-2024-3", "CVE-2024-4"}, ThreatFeedHits: 2, MalwareIndicators: 1,
		},
		D6Vulnerability: &model.VulnerabilityDimension{DangerousPortsOpen: []int{23, 445, 3389}, TotalOpenPorts: 6, UnpatchedCritical: 2, ExploitAvailable: true},
		D7Criticality:   &model.CriticalityDimension{BusinessImpact: "critical", DataClassification: "top-secret", IsInternetFacing: true, HandlesPII: true},
		D8Compliance: &model.ComplianceDimension{
			PolicyViolations: []string{"p1", "p2", "p3"}, FirewallEnabled: boolPtr(false), AVPresent: boolPtr(false), EncryptionEnabled: boolPtr(false),
		},
		D9Geo:          &model.GeoDimension{IsVPN: true, IsKnownLocation: boolPtr(false)},
		D10Traffic:     &model.TrafficDimension{ActiveTCPConnections: 101, BytesSentMB: 1001, ListeningPorts: 21},
		D11Application: &model.ApplicationDimension{SuspiciousApps: []string{"a", "b"}, RemoteAccessTools: []string{"anydesk"}, CryptoMiningRisk: true},
		D12Patch:       &model.PatchDimension{EOLStatus: "eol", DaysSinceUpdate: intPtr(91), PendingUpdates: 10},
		D13Privilege:   &model.PrivilegeDimension{IsAdmin: true, RootLoginEnabled: true, SudoUsers: []string{"a", "b", "c", "d"}},
	}
}

func TestMaxScores_sumTo100(t *testing.T) {
	total := 0
	for _, key := range model.DimensionKeys {
		max, ok := risk.MaxScores[key]
		if !ok {
			t.Fatalf("no max for %s", key)
		}
		total += max
	}
	if total != 100 {
		t.Errorf("dimension maxima sum to %d, want 100", total)
	}
}

func TestBuildVectorScores_saturatedReachesEveryMax(t *testing.T) {
	scored := risk.BuildVectorScores(saturated())

	want := make(model.RiskFactors, len(risk.MaxScores))
	for k, v := range risk.MaxScores {
		want[k] = v
	}
	score, factors := risk.ComputeVectorScore(scored)
	if diff := cmp.Diff(want, factors); diff != "" {
		t.Errorf("factors mismatch (-want +got):\n%s", diff)
	}
	if score != 100 {
		t.Errorf("score: got %d, want 100", score)
	}
	if scored.VectorScore != 100 {
		t.Errorf("VectorScore: got %d, want 100", scored.VectorScore)
	}
}

func TestBuildVectorScores_doesNotMutateInput(t *testing.T) {
	raw := saturated()
	_ = risk.BuildVectorScores(raw)
	for _, d := range raw.Present() {
		if d.Score != 0 {
			t.Errorf("input dimension %s mutated to %d", d.Key, d.Score)
		}
	}
	if raw.VectorScore != 0 {
		t.Errorf("input VectorScore mutated to %d", raw.VectorScore)
	}
}

func TestBuildVectorScores_partialKeepsAbsentNil(t *testing.T) {
	raw := &model.VectorContext{
		D5ThreatIntel: &model.ThreatIntelDimension{CVECount: 2},
	}
	scored := risk.BuildVectorScores(raw)
	if scored.D1Network != nil || scored.D13Privilege != nil {
		t.Error("absent dimensions should stay nil")
	}
	if scored.D5ThreatIntel.Score != 4 {
		t.Errorf("D5 score: got %d, want 4", scored.D5ThreatIntel.Score)
	}

	score, factors := risk.ComputeVectorScore(scored)
	if len(factors) != 13 {
		t.Errorf("expected 13 factor keys, got %d", len(factors))
	}
	if score != 4 || factors[model.DimThreatIntel] != 4 {
		t.Errorf("score: got %d (d5=%d), want 4", score, factors[model.DimThreatIntel])
	}
}

func TestBuildVectorScores_nil(t *testing.T) {
	if risk.BuildVectorScores(nil) != nil {
		t.Error("expected nil for nil input")
	}
	score, factors := risk.ComputeVectorScore(nil)
	if score != 0 || len(factors) != 13 {
		t.Errorf("ComputeVectorScore(nil): got %d with %d keys", score, len(factors))
	}
}

func TestBuildVectorScores_absentTriStateScoresZero(t *testing.T) {
	scored := risk.BuildVectorScores(&model.VectorContext{
		D4Temporal:   &model.TemporalDimension{},
		D8Compliance: &model.ComplianceDimension{},
		D9Geo:        &model.GeoDimension{},
		D12Patch:     &model.PatchDimension{},
	})
	for _, d := range scored.Present() {
		if d.Score != 0 {
			t.Errorf("%s: empty dimension scored %d, want 0", d.Key, d.Score)
		}
	}
}

func TestBuildVectorScores_emptyDimensionRules(t *testing.T) {
	scored := risk.BuildVectorScores(&model.VectorContext{
		D1Network:  &model.NetworkDimension{},
		D2Identity: &model.IdentityDimension{},
	})
	// Missing gateway scores 1; missing MFA 1 plus missing AD domain 2.
	if scored.D1Network.Score != 1 {
		t.Errorf("D1: got %d, want 1", scored.D1Network.Score)
	}
	if scored.D2Identity.Score != 3 {
		t.Errorf("D2: got %d, want 3", scored.D2Identity.Score)
	}
}

func TestBuildVectorScores_dimensionRules(t *testing.T) {
	domain := "corp.local"
	gw := "10.0.0.1"

	cases := []struct {
		name string
		ctx  *model.VectorContext
		key  string
		want int
	}{
		{"network cloud busy", &model.VectorContext{D1Network: &model.NetworkDimension{NetworkZone: "cloud", ActiveConnections: 21, Gateway: &gw}}, model.DimNetwork, 4},
		{"identity single admin domain joined mfa", &model.VectorContext{D2Identity: &model.IdentityDimension{AdminUsers: []string{"root"}, ADDomain: &domain, MFAEnabled: boolPtr(true)}}, model.DimIdentity, 2},
		{"behavior moderate", &model.VectorContext{D3Behavior: &model.BehaviorDimension{FailedLogins24h: 4, LoadAverage: 2.5}}, model.DimBehavior, 3},
		{"temporal business hours", &model.VectorContext{D4Temporal: &model.TemporalDimension{UptimeDays: 45, IsBusinessHours: boolPtr(true)}}, model.DimTemporal, 1},
		{"threat cve count wins", &model.VectorContext{D5ThreatIntel: &model.ThreatIntelDimension{CVECount: 1, KnownCVEs: []string{"a", "b", "c"}}}, model.DimThreatIntel, 6},
		{"vuln half point rounds to even", &model.VectorContext{D6Vulnerability: &model.VulnerabilityDimension{TotalOpenPorts: 5}}, model.DimVulnerability, 2},
		{"criticality medium internal", &model.VectorContext{D7Criticality: &model.CriticalityDimension{BusinessImpact: "medium", DataClassification: "internal"}}, model.DimCriticality, 4},
		{"compliance firewall off", &model.VectorContext{D8Compliance: &model.ComplianceDimension{FirewallEnabled: boolPtr(false), AVPresent: boolPtr(true)}}, model.DimCompliance, 2},
		{"geo known location", &model.VectorContext{D9Geo: &model.GeoDimension{IsVPN: true, IsKnownLocation: boolPtr(true)}}, model.DimGeo, 1},
		{"traffic moderate", &model.VectorContext{D10Traffic: &model.TrafficDimension{ActiveTCPConnections: 31, BytesSentMB: 101}}, model.DimTraffic, 2},
		{"application remote tools", &model.VectorContext{D11Application: &model.ApplicationDimension{RemoteAccessTools: []string{"teamviewer"}}}, model.DimApplication, 2},
		{"patch extended stale week", &model.VectorContext{D12Patch: &model.PatchDimension{EOLStatus: "extended", DaysSinceUpdate: intPtr(8), PendingUpdates: 9}}, model.DimPatch, 3},
		{"privilege few sudoers", &model.VectorContext{D13Privilege: &model.PrivilegeDimension{IsAdmin: true, SudoUsers: []string{"a", "b", "c"}}}, model.DimPrivilege, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, factors := risk.ComputeVectorScore(risk.BuildVectorScores(tc.ctx))
			if got := factors[tc.key]; got != tc.want {
				t.Errorf("%s: got %d, want %d", tc.key, got, tc.want)
			}
		})
	}
}

func TestComputeVectorScore_clampsOversizedDimensions(t *testing.T) {
	ctx := &model.VectorContext{
		D5ThreatIntel: &model.ThreatIntelDimension{Score: 90},
		D9Geo:         &model.GeoDimension{Score: -3},
	}
	score, factors := risk.ComputeVectorScore(ctx)
	if factors[model.DimThreatIntel] != 15 || factors[model.DimGeo] != 0 {
		t.Errorf("factors not clamped: %v", factors)
	}
	if score != 15 {
		t.Errorf("score: got %d, want 15", score)
	}
}

func TestComputeVectorScore_equalsFactorSum(t *testing.T) {
	ctxs := []*model.VectorContext{
		saturated(),
		{D1Network: &model.NetworkDimension{NetworkZone: "dmz"}},
		{D6Vulnerability: &model.VulnerabilityDimension{TotalOpenPorts: 3}, D12Patch: &model.PatchDimension{DaysSinceUpdate: intPtr(40)}},
	}
	for i, c := range ctxs {
		score, factors := risk.ComputeVectorScore(risk.BuildVectorScores(c))
		if score != factors.Sum() {
			t.Errorf("case %d: score %d != factor sum %d", i, score, factors.Sum())
		}
		for key, v := range factors {
			if v < 0 || v > risk.MaxScores[key] {
				t.Errorf("case %d: %s=%d outside [0,%d]", i, key, v, risk.MaxScores[key])
			}
		}
	}
}
