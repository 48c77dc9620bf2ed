package model

import (
	"time"

	"github.com/google/uuid"
)

// AssetStatus is the operational triage state of an asset.
type AssetStatus string

const (
	AssetStatusActive   AssetStatus = "active"
	AssetStatusInactive AssetStatus = "inactive"
	AssetStatusCritical AssetStatus = "critical"
	AssetStatusWarning  AssetStatus = "warning"
	AssetStatusUnknown  AssetStatus = "unknown"
)

// Asset types recognised by the scorers.
const (
	AssetTypeServer   = "server"
	AssetTypeEndpoint = "endpoint"
	AssetTypeNetwork  = "network"
	AssetTypeDatabase = "database"
	AssetTypeCloud    = "cloud"
	AssetTypeIoT      = "iot"
	AssetTypeUnknown  = "unknown"
)

// Discovery methods.
const (
	DiscoveryAgent  = "agent"
	DiscoverySNMP   = "snmp"
	DiscoveryPing   = "ping"
	DiscoveryARP    = "arp"
	DiscoveryDNS    = "dns"
	DiscoveryManual = "manual"
	DiscoveryADSync = "ad_sync"
)

// UpsertAction reports what an upsert did to the asset row.
type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
)

// Asset is one discovered machine. Hostname + UserID is the natural key.
type Asset struct {
	ID              uuid.UUID      `json:"id"               db:"id"`
	UserID          string         `json:"user_id"          db:"user_id"`
	Hostname        string         `json:"hostname"         db:"hostname"`
	IPAddress       string         `json:"ip_address"       db:"ip_address"`
	MACAddress      *string        `json:"mac_address"      db:"mac_address"`
	FQDN            *string        `json:"fqdn"             db:"fqdn"`
	AssetType       string         `json:"asset_type"       db:"asset_type"`
	OSName          *string        `json:"os_name"          db:"os_name"`
	OSVersion       *string        `json:"os_version"       db:"os_version"`
	OSArch          *string        `json:"os_arch"          db:"os_arch"`
	Manufacturer    *string        `json:"manufacturer"     db:"manufacturer"`
	Model           *string        `json:"model"            db:"model"`
	OpenPorts       []PortInfo     `json:"open_ports"       db:"open_ports"`
	Services        []ServiceInfo  `json:"services"         db:"services"`
	Subnet          *string        `json:"subnet"           db:"subnet"`
	RiskScore       int            `json:"risk_score"       db:"risk_score"`
	RiskFactors     RiskFactors    `json:"risk_factors"     db:"risk_factors"`
	VulnCount       int            `json:"vuln_count"       db:"vuln_count"`
	DiscoveryMethod string         `json:"discovery_method" db:"discovery_method"`
	LastSeen        time.Time      `json:"last_seen"        db:"last_seen"`
	FirstSeen       time.Time      `json:"first_seen"       db:"first_seen"`
	UptimeSeconds   *int64         `json:"uptime_seconds"   db:"uptime_seconds"`
	Status          AssetStatus    `json:"status"           db:"status"`
	IsManaged       bool           `json:"is_managed"       db:"is_managed"`
	AgentVersion    *string        `json:"agent_version"    db:"agent_version"`
	Tags            []string       `json:"tags"             db:"tags"`
	VectorContext   *VectorContext `json:"vector_context"   db:"vector_context"`
	CreatedAt       time.Time      `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"       db:"updated_at"`
}

// PortInfo is one observed port on an asset.
type PortInfo struct {
	Port     int    `json:"port"`
	Service  string `json:"service"`
	State    string `json:"state"`    // open, closed, filtered
	Protocol string `json:"protocol"` // tcp, udp
}

// PortStateOpen is the only port state the scorers count.
const PortStateOpen = "open"

// ServiceInfo is one running service on an asset.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
	PID     int    `json:"pid,omitempty"`
}

// RiskFactors is the named breakdown of a risk score. It carries either the
// five legacy keys or the thirteen dimension keys, never both.
type RiskFactors map[string]int

// Sum returns the total of every factor.
func (f RiskFactors) Sum() int {
	total := 0
	for _, v := range f {
		total += v
	}
	return total
}

// Legacy factor keys.
const (
	FactorOpenPorts = "open_ports"
	FactorOSAge     = "os_age"
	FactorPrivilege = "privilege"
	FactorRecency   = "recency"
	FactorVulnCount = "vuln_count"
)

// HeartbeatPayload is the telemetry an agent submits on every heartbeat.
type HeartbeatPayload struct {
	Hostname      string         `json:"hostname"`
	IPAddress     string         `json:"ip_address"`
	MACAddress    string         `json:"mac_address,omitempty"`
	FQDN          string         `json:"fqdn,omitempty"`
	OSName        string         `json:"os_name"`
	OSVersion     string         `json:"os_version"`
	OSArch        string         `json:"os_arch,omitempty"`
	Manufacturer  string         `json:"manufacturer,omitempty"`
	Model         string         `json:"model,omitempty"`
	OpenPorts     []PortInfo     `json:"open_ports,omitempty"`
	Services      []ServiceInfo  `json:"services,omitempty"`
	UptimeSeconds *int64         `json:"uptime_seconds,omitempty"`
	AgentVersion  string         `json:"agent_version"`
	AssetType     string         `json:"asset_type,omitempty"`
	VulnCount     int            `json:"vuln_count,omitempty"`
	IsPrivileged  bool           `json:"is_privileged,omitempty"`
	VectorContext *VectorContext `json:"vector_context,omitempty"`
}

// AssetFilter narrows an asset listing.
type AssetFilter struct {
	Status string
	Type   string
	Search string
}

// StrPtr returns nil for an empty string, otherwise a pointer to s.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
