package model

import "time"

type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertExpired      AlertStatus = "expired"
)

type AlertSeverity string

const (
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

var severityRank = map[AlertSeverity]int{
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Exceeds reports whether s is strictly more severe than other.
func (s AlertSeverity) Exceeds(other AlertSeverity) bool {
	return severityRank[s] > severityRank[other]
}

// DemandAlert is an act-fast pressure signal for one hold target and rolling window.
type DemandAlert struct {
	ID                  string        `json:"id" bson:"_id"`
	TenantID            string        `json:"tenant_id" bson:"tenant_id"`
	Target              HoldTarget    `json:"target" bson:"target"`
	TargetKey           string        `json:"target_key" bson:"target_key"`
	PolicyID            string        `json:"policy_id,omitempty" bson:"policy_id,omitempty"`
	WindowStart         time.Time     `json:"window_start" bson:"window_start"`
	WindowEnd           time.Time     `json:"window_end" bson:"window_end"`
	BlockingCount       int           `json:"blocking_count" bson:"blocking_count"`
	NonBlockingCount    int           `json:"non_blocking_count" bson:"non_blocking_count"`
	UniqueOwnerCount    int           `json:"unique_owner_count" bson:"unique_owner_count"`
	PressureScore       float64       `json:"pressure_score" bson:"pressure_score"`
	Severity            AlertSeverity `json:"severity" bson:"severity"`
	Status              AlertStatus   `json:"status" bson:"status"`
	BelowThresholdSince *time.Time    `json:"below_threshold_since,omitempty" bson:"below_threshold_since,omitempty"`
	OpenedAt            time.Time     `json:"opened_at" bson:"opened_at"`
	UpdatedAt           time.Time     `json:"updated_at" bson:"updated_at"`
	AcknowledgedAt      *time.Time    `json:"acknowledged_at,omitempty" bson:"acknowledged_at,omitempty"`
	AcknowledgedBy      string        `json:"acknowledged_by,omitempty" bson:"acknowledged_by,omitempty"`
	ResolvedAt          *time.Time    `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	ExpiredAt           *time.Time    `json:"expired_at,omitempty" bson:"expired_at,omitempty"`
}

// IsLive reports whether the alert can still escalate or resolve.
func (a *DemandAlert) IsLive() bool {
	return a.Status == AlertOpen || a.Status == AlertAcknowledged
}

// HoldPressure is the hold volume observed for one target in a rolling window.
type HoldPressure struct {
	TargetKey        string `json:"target_key"`
	BlockingCount    int    `json:"blocking_count"`
	NonBlockingCount int    `json:"non_blocking_count"`
	UniqueOwnerCount int    `json:"unique_owner_count"`
}
