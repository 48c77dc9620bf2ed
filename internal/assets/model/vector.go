package model

import (
	"encoding/json"
	"time"
)

// Dimension keys, used both as VectorContext JSON fields and as RiskFactors keys.
const (
	DimNetwork       = "d1_network"
	DimIdentity      = "d2_identity"
	DimBehavior      = "d3_behavior"
	DimTemporal      = "d4_temporal"
	DimThreatIntel   = "d5_threat_intel"
	DimVulnerability = "d6_vulnerability"
	DimCriticality   = "d7_criticality"
	DimCompliance    = "d8_compliance"
	DimGeo           = "d9_geo"
	DimTraffic       = "d10_traffic"
	DimApplication   = "d11_application"
	DimPatch         = "d12_patch"
	DimPrivilege     = "d13_privilege"
)

// DimensionKeys lists every dimension in canonical order.
var DimensionKeys = []string{
	DimNetwork, DimIdentity, DimBehavior, DimTemporal, DimThreatIntel,
	DimVulnerability, DimCriticality, DimCompliance, DimGeo, DimTraffic,
	DimApplication, DimPatch, DimPrivilege,
}

// VectorContext is the 13-dimension telemetry bundle for one asset.
// Each dimension is optional; agents may submit any subset.
type VectorContext struct {
	D1Network       *NetworkDimension       `json:"d1_network,omitempty"`
	D2Identity      *IdentityDimension      `json:"d2_identity,omitempty"`
	D3Behavior      *BehaviorDimension      `json:"d3_behavior,omitempty"`
	D4Temporal      *TemporalDimension      `json:"d4_temporal,omitempty"`
	D5ThreatIntel   *ThreatIntelDimension   `json:"d5_threat_intel,omitempty"`
	D6Vulnerability *VulnerabilityDimension `json:"d6_vulnerability,omitempty"`
	D7Criticality   *CriticalityDimension   `json:"d7_criticality,omitempty"`
	D8Compliance    *ComplianceDimension    `json:"d8_compliance,omitempty"`
	D9Geo           *GeoDimension           `json:"d9_geo,omitempty"`
	D10Traffic      *TrafficDimension       `json:"d10_traffic,omitempty"`
	D11Application  *ApplicationDimension   `json:"d11_application,omitempty"`
	D12Patch        *PatchDimension         `json:"d12_patch,omitempty"`
	D13Privilege    *PrivilegeDimension     `json:"d13_privilege,omitempty"`

	CollectedAt       *time.Time `json:"collected_at,omitempty"`
	CollectionVersion string     `json:"collection_version,omitempty"`
	VectorScore       int        `json:"vector_score"`
}

// DimensionScore is the scored value of one present dimension.
type DimensionScore struct {
	Key   string
	Score int
}

// Present returns the scores of every dimension that was submitted,
// in canonical order. Absent dimensions are skipped.
func (v *VectorContext) Present() []DimensionScore {
	if v == nil {
		return nil
	}
	var out []DimensionScore
	add := func(key string, score int) {
		out = append(out, DimensionScore{Key: key, Score: score})
	}
	if v.D1Network != nil {
		add(DimNetwork, v.D1Network.Score)
	}
	if v.D2Identity != nil {
		add(DimIdentity, v.D2Identity.Score)
	}
	if v.D3Behavior != nil {
		add(DimBehavior, v.D3Behavior.Score)
	}
	if v.D4Temporal != nil {
		add(DimTemporal, v.D4Temporal.Score)
	}
	if v.D5ThreatIntel != nil {
		add(DimThreatIntel, v.D5ThreatIntel.Score)
	}
	if v.D6Vulnerability != nil {
		add(DimVulnerability, v.D6Vulnerability.Score)
	}
	if v.D7Criticality != nil {
		add(DimCriticality, v.D7Criticality.Score)
	}
	if v.D8Compliance != nil {
		add(DimCompliance, v.D8Compliance.Score)
	}
	if v.D9Geo != nil {
		add(DimGeo, v.D9Geo.Score)
	}
	if v.D10Traffic != nil {
		add(DimTraffic, v.D10Traffic.Score)
	}
	if v.D11Application != nil {
		add(DimApplication, v.D11Application.Score)
	}
	if v.D12Patch != nil {
		add(DimPatch, v.D12Patch.Score)
	}
	if v.D13Privilege != nil {
		add(DimPrivilege, v.D13Privilege.Score)
	}
	return out
}

// HasDimensions reports whether at least one dimension was submitted.
func (v *VectorContext) HasDimensions() bool {
	return len(v.Present()) > 0
}

// Clone returns a deep copy of the context.
func (v *VectorContext) Clone() *VectorContext {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		cp := *v
		return &cp
	}
	var out VectorContext
	if err := json.Unmarshal(raw, &out); err != nil {
		cp := *v
		return &cp
	}
	return &out
}

// NetworkDimension is D1.
type NetworkDimension struct {
	Subnet            *string  `json:"subnet"`
	Gateway           *string  `json:"gateway"`
	DNSServers        []string `json:"dns_servers"`
	InterfaceCount    int      `json:"interface_count"`
	ActiveConnections int      `json:"active_connections"`
	NetworkZone       string   `json:"network_zone"` // dmz, internal, external, cloud, unknown
	IsWifi            bool     `json:"is_wifi"`
	Score             int      `json:"score"`
}

// IdentityDimension is D2.
type IdentityDimension struct {
	LocalUsers    []string `json:"local_users"`
	AdminUsers    []string `json:"admin_users"`
	ADDomain      *string  `json:"ad_domain"`
	ADOU          *string  `json:"ad_ou"`
	ADGroups      []string `json:"ad_groups"`
	LastLoginUser *string  `json:"last_login_user"`
	LastLoginTime *string  `json:"last_login_time"`
	MFAEnabled    *bool    `json:"mfa_enabled"`
	Score         int      `json:"score"`
}

// BehaviorDimension is D3.
type BehaviorDimension struct {
	LoginCount24h       int      `json:"login_count_24h"`
	FailedLogins24h     int      `json:"failed_logins_24h"`
	ProcessCount        int      `json:"process_count"`
	LoadAverage         float64  `json:"load_average"`
	SuspiciousProcesses []string `json:"suspicious_processes"`
	AnomalyScore        float64  `json:"anomaly_score"`
	Score               int      `json:"score"`
}

// TemporalDimension is D4.
type TemporalDimension struct {
	Timezone        *string `json:"timezone"`
	LastReboot      *string `json:"last_reboot"`
	UptimeDays      float64 `json:"uptime_days"`
	CollectionHour  int     `json:"collection_hour"`
	IsBusinessHours *bool   `json:"is_business_hours"`
	Score           int     `json:"score"`
}

// ThreatIntelDimension is D5.
type ThreatIntelDimension struct {
	KnownCVEs         []string `json:"known_cves"`
	CVECount          int      `json:"cve_count"`
	MITRETechniques   []string `json:"mitre_techniques"`
	ThreatFeedHits    int      `json:"threat_feed_hits"`
	MalwareIndicators int      `json:"malware_indicators"`
	Score             int      `json:"score"`
}

// VulnSeverity counts findings by severity.
type VulnSeverity struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// VulnerabilityDimension is D6.
type VulnerabilityDimension struct {
	DangerousPortsOpen []int        `json:"dangerous_ports_open"`
	TotalOpenPorts     int          `json:"total_open_ports"`
	UnpatchedCritical  int          `json:"unpatched_critical"`
	ExploitAvailable   bool         `json:"exploit_available"`
	VulnSeverity       VulnSeverity `json:"vuln_severity"`
	Score              int          `json:"score"`
}

// CriticalityDimension is D7.
type CriticalityDimension struct {
	BusinessImpact     string  `json:"business_impact"`     // critical, high, medium, low
	DataClassification string  `json:"data_classification"` // top-secret, confidential, internal, public
	IsInternetFacing   bool    `json:"is_internet_facing"`
	HandlesPII         bool    `json:"handles_pii"`
	CriticalityScore   float64 `json:"criticality_score"`
	Score              int     `json:"score"`
}

// ComplianceDimension is D8.
type ComplianceDimension struct {
	PolicyViolations  []string `json:"policy_violations"`
	Frameworks        []string `json:"frameworks"`
	FirewallEnabled   *bool    `json:"firewall_enabled"`
	AVPresent         *bool    `json:"av_present"`
	EncryptionEnabled *bool    `json:"encryption_enabled"`
	Score             int      `json:"score"`
}

// GeoDimension is D9.
type GeoDimension struct {
	Country         *string `json:"country"`
	City            *string `json:"city"`
	ISP             *string `json:"isp"`
	TimezoneGeo     *string `json:"timezone_geo"`
	IsVPN           bool    `json:"is_vpn"`
	IsKnownLocation *bool   `json:"is_known_location"`
	Score           int     `json:"score"`
}

// TrafficDimension is D10.
type TrafficDimension struct {
	BytesSentMB            float64 `json:"bytes_sent_mb"`
	BytesRecvMB            float64 `json:"bytes_recv_mb"`
	ActiveTCPConnections   int     `json:"active_tcp_connections"`
	EstablishedConnections int     `json:"established_connections"`
	ListeningPorts         int     `json:"listening_ports"`
	Score                  int     `json:"score"`
}

// ApplicationDimension is D11.
type ApplicationDimension struct {
	InstalledPackages  int      `json:"installed_packages"`
	SuspiciousApps     []string `json:"suspicious_apps"`
	DevToolsPresent    bool     `json:"dev_tools_present"`
	RemoteAccessTools  []string `json:"remote_access_tools"`
	CryptoMiningRisk   bool     `json:"crypto_mining_risk"`
	AppReputationScore float64  `json:"app_reputation_score"`
	Score              int      `json:"score"`
}

// PatchDimension is D12.
type PatchDimension struct {
	KernelVersion   *string `json:"kernel_version"`
	DaysSinceUpdate *int    `json:"days_since_update"`
	PendingUpdates  int     `json:"pending_updates"`
	EOLStatus       string  `json:"eol_status"` // supported, extended, eol, unknown
	PatchLevelPct   float64 `json:"patch_level_pct"`
	Score           int     `json:"score"`
}

// PrivilegeDimension is D13.
type PrivilegeDimension struct {
	IsAdmin                 bool     `json:"is_admin"`
	RootLoginEnabled        bool     `json:"root_login_enabled"`
	SudoUsers               []string `json:"sudo_users"`
	ServiceAccounts         []string `json:"service_accounts"`
	PrivilegeEscalationRisk float64  `json:"privilege_escalation_risk"`
	Score                   int      `json:"score"`
}
