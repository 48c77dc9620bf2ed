package risk_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/risk"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func openPorts(ports ...int) []model.PortInfo {
	out := make([]model.PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, model.PortInfo{Port: p, State: model.PortStateOpen, Protocol: "tcp"})
	}
	return out
}

func TestComputeRiskScore_ubuntuServer(t *testing.T) {
	score, factors := risk.ComputeRiskScore(risk.LegacyInput{
		OpenPorts: openPorts(22, 80, 443),
		OSName:    "Ubuntu 22.04",
		LastSeen:  now,
		AssetType: model.AssetTypeServer,
		Now:       now,
	})

	want := model.RiskFactors{
		model.FactorOpenPorts: 4,
		model.FactorOSAge:     3,
		model.FactorPrivilege: 15,
		model.FactorRecency:   0,
		model.FactorVulnCount: 0,
	}
	if diff := cmp.Diff(want, factors); diff != "" {
		t.Errorf("factors mismatch (-want +got):\n%s", diff)
	}
	if score != 22 {
		t.Errorf("score: got %d, want 22", score)
	}
	if got := risk.DeriveStatus(score); got != model.AssetStatusActive {
		t.Errorf("status: got %q, want active", got)
	}
}

func TestComputeRiskScore_vulnCountCapped(t *testing.T) {
	score, factors := risk.ComputeRiskScore(risk.LegacyInput{
		OpenPorts: openPorts(22, 80, 443),
		OSName:    "Ubuntu 22.04",
		LastSeen:  now,
		VulnCount: 10,
		AssetType: model.AssetTypeServer,
		Now:       now,
	})
	if factors[model.FactorVulnCount] != 20 {
		t.Errorf("vuln factor: got %d, want 20", factors[model.FactorVulnCount])
	}
	if score != 42 {
		t.Errorf("score: got %d, want 42", score)
	}
}

func TestComputeRiskScore_boundedAndSummed(t *testing.T) {
	cases := []risk.LegacyInput{
		{},
		{OpenPorts: openPorts(21, 23, 135, 139, 445, 1433, 3306, 3389, 5432, 6379, 27017), OSName: "Windows XP", VulnCount: 100, IsPrivileged: true},
		{OpenPorts: openPorts(8080), OSName: "Debian 12", AssetType: "printer", LastSeen: now.Add(-30 * time.Hour), Now: now},
		{VulnCount: -4, LastSeen: now.Add(time.Hour), Now: now},
	}
	for i, in := range cases {
		score, factors := risk.ComputeRiskScore(in)
		if score < 0 || score > risk.MaxScore {
			t.Errorf("case %d: score %d out of bounds", i, score)
		}
		if score != factors.Sum() && factors.Sum() <= risk.MaxScore {
			t.Errorf("case %d: score %d != factor sum %d", i, score, factors.Sum())
		}
		if len(factors) != 5 {
			t.Errorf("case %d: expected 5 legacy factors, got %d", i, len(factors))
		}
	}
}

func TestPortRisk_onlyOpenPortsCount(t *testing.T) {
	ports := []model.PortInfo{
		{Port: 3389, State: "closed"},
		{Port: 445, State: "filtered"},
		{Port: 22, State: model.PortStateOpen},
	}
	if got := risk.PortRisk(ports); got != 1.5 {
		t.Errorf("PortRisk: got %v, want 1.5", got)
	}
}

func TestPortRisk_monotonic(t *testing.T) {
	all := []int{22, 80, 443, 3389, 445, 8080, 21, 23, 5432, 6379, 27017, 9200, 1433, 135, 139}
	prev := -1.0
	for n := 0; n <= len(all); n++ {
		got := risk.PortRisk(openPorts(all[:n]...))
		if got < prev {
			t.Fatalf("adding port %d lowered risk: %v -> %v", all[n-1], prev, got)
		}
		if got > 25 {
			t.Fatalf("port risk %v exceeds 25", got)
		}
		prev = got
	}
	if prev != 25 {
		t.Errorf("expected saturation at 25, got %v", prev)
	}
}

func TestRecencyRisk_monotonic(t *testing.T) {
	prev := -1.0
	for h := 0; h <= 400; h++ {
		got := risk.RecencyRisk(time.Duration(h) * time.Hour)
		if got < prev {
			t.Fatalf("recency risk decreased at %dh: %v -> %v", h, prev, got)
		}
		prev = got
	}
}

func TestRecencyRisk_ladder(t *testing.T) {
	cases := []struct {
		since time.Duration
		want  float64
	}{
		{0, 0},
		{4 * time.Hour, 0},
		{5 * time.Hour, 2},
		{25 * time.Hour, 6},
		{73 * time.Hour, 10},
		{169 * time.Hour, 15},
	}
	for _, tc := range cases {
		if got := risk.RecencyRisk(tc.since); got != tc.want {
			t.Errorf("RecencyRisk(%v): got %v, want %v", tc.since, got, tc.want)
		}
	}
}

func TestOSRisk_ladder(t *testing.T) {
	cases := []struct {
		os   string
		want float64
	}{
		{"", 5},
		{"Windows XP Professional", 20},
		{"Windows Server 2008 R2", 20},
		{"Windows Server 2012", 15},
		{"CentOS 6.10", 12},
		{"Ubuntu 18.04 LTS", 12},
		{"Windows 10 Pro", 7},
		{"Ubuntu 20.04", 7},
		{"Windows 11 Enterprise", 3},
		{"Ubuntu 24.04", 3},
		{"Windows Server 2022", 3},
		{"FreeBSD 14", 5},
	}
	for _, tc := range cases {
		if got := risk.OSRisk(tc.os); got != tc.want {
			t.Errorf("OSRisk(%q): got %v, want %v", tc.os, got, tc.want)
		}
	}
}

func TestPrivilegeRisk(t *testing.T) {
	cases := []struct {
		assetType  string
		privileged bool
		want       float64
	}{
		{model.AssetTypeEndpoint, true, 20},
		{model.AssetTypeServer, false, 15},
		{model.AssetTypeDatabase, false, 18},
		{model.AssetTypeNetwork, false, 14},
		{model.AssetTypeCloud, false, 10},
		{model.AssetTypeEndpoint, false, 8},
		{model.AssetTypeIoT, false, 16},
		{model.AssetTypeUnknown, false, 12},
		{"mainframe", false, 10},
	}
	for _, tc := range cases {
		if got := risk.PrivilegeRisk(tc.assetType, tc.privileged); got != tc.want {
			t.Errorf("PrivilegeRisk(%q, %v): got %v, want %v", tc.assetType, tc.privileged, got, tc.want)
		}
	}
}

func TestDeriveStatus_boundaries(t *testing.T) {
	cases := map[int]model.AssetStatus{
		100: model.AssetStatusCritical,
		75:  model.AssetStatusCritical,
		74:  model.AssetStatusWarning,
		50:  model.AssetStatusWarning,
		49:  model.AssetStatusActive,
		0:   model.AssetStatusActive,
	}
	for score, want := range cases {
		if got := risk.DeriveStatus(score); got != want {
			t.Errorf("DeriveStatus(%d): got %q, want %q", score, got, want)
		}
	}
}

func TestGetRiskLevel_bands(t *testing.T) {
	cases := map[int]string{
		100: "Critical",
		75:  "Critical",
		74:  "High",
		50:  "High",
		49:  "Medium",
		25:  "Medium",
		24:  "Low",
		0:   "Low",
	}
	for score, want := range cases {
		if got := risk.GetRiskLevel(score).Label; got != want {
			t.Errorf("GetRiskLevel(%d): got %q, want %q", score, got, want)
		}
	}
}
