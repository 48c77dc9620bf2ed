package model

import (
	"time"

	"github.com/google/uuid"
)

// ScanStatus is the lifecycle state of a discovery scan.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusCancelled
}

// Scan types.
const (
	ScanTypeQuick     = "quick"
	ScanTypeFull      = "full"
	ScanTypeTargeted  = "targeted"
	ScanTypeAgentSync = "agent_sync"
)

// Log levels for scan log entries.
const (
	LogInfo    = "info"
	LogWarn    = "warn"
	LogError   = "error"
	LogSuccess = "success"
)

// ScanLogEntry is one line of a scan's durable log.
type ScanLogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Level   string    `json:"level"`
}

// AssetScan is a discovery scan job record.
type AssetScan struct {
	ID            uuid.UUID      `json:"id"             db:"id"`
	UserID        string         `json:"user_id"        db:"user_id"`
	ScanType      string         `json:"scan_type"      db:"scan_type"`
	Status        ScanStatus     `json:"status"         db:"status"`
	TargetSubnet  string         `json:"target_subnet"  db:"target_subnet"`
	StartedAt     time.Time      `json:"started_at"     db:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at"   db:"completed_at"`
	AssetsFound   int            `json:"assets_found"   db:"assets_found"`
	AssetsNew     int            `json:"assets_new"     db:"assets_new"`
	AssetsUpdated int            `json:"assets_updated" db:"assets_updated"`
	Progress      int            `json:"progress"       db:"progress"`
	LogEntries    []ScanLogEntry `json:"log_entries"    db:"log_entries"`
	TriggeredBy   string         `json:"triggered_by"   db:"triggered_by"`
	CreatedAt     time.Time      `json:"created_at"     db:"created_at"`
}

// ScanResult holds the final counters written when a scan finishes.
type ScanResult struct {
	Status        ScanStatus
	AssetsFound   int
	AssetsNew     int
	AssetsUpdated int
	Progress      int
}

// StartScanRequest is the body of POST /assets/scan.
type StartScanRequest struct {
	UserID   string `json:"user_id"`
	ScanType string `json:"scan_type"`
	Subnet   string `json:"subnet"`
}
