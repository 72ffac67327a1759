package domain

import "time"

// DeliveryJobStatus is the state of one delivery attempt.
// Jobs move Pending -> InProgress -> Succeeded or Failed; the terminal
// states are immutable except for metrics backfill.
type DeliveryJobStatus string

const (
	JobPending    DeliveryJobStatus = "Pending"
	JobInProgress DeliveryJobStatus = "InProgress"
	JobSucceeded  DeliveryJobStatus = "Succeeded"
	JobFailed     DeliveryJobStatus = "Failed"
)

// Terminal reports whether the status admits no further transitions
func (s DeliveryJobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Campaign is per-platform campaign metadata attached to a job
type Campaign struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
}

// PerformanceMetrics is the metrics snapshot reported by the platform
type PerformanceMetrics struct {
	Impressions int64   `json:"impressions" mapstructure:"impressions"`
	Clicks      int64   `json:"clicks" mapstructure:"clicks"`
	Conversions int64   `json:"conversions" mapstructure:"conversions"`
	Spend       float64 `json:"spend" mapstructure:"spend"`
}

// DeliveryJob is one attempt to deliver one audience to one destination
type DeliveryJob struct {
	ID            string              `json:"id" mapstructure:"id"`
	AudienceID    string              `json:"audience_id" mapstructure:"audience_id"`
	DestinationID string              `json:"destination_id" mapstructure:"destination_id"`
	// EngagementID is empty for standalone deliveries
	EngagementID string              `json:"engagement_id,omitempty" mapstructure:"engagement_id"`
	Status       DeliveryJobStatus   `json:"status" mapstructure:"status"`
	Size         int64               `json:"size" mapstructure:"size"`
	MatchRate    float64             `json:"match_rate" mapstructure:"match_rate"`
	Campaigns    []Campaign          `json:"campaigns" mapstructure:"campaigns"`
	Metrics      *PerformanceMetrics `json:"metrics,omitempty" mapstructure:"metrics"`
	StartTime    *time.Time          `json:"start_time,omitempty" mapstructure:"start_time"`
	EndTime      *time.Time          `json:"end_time,omitempty" mapstructure:"end_time"`
	CreatedBy    string              `json:"created_by" mapstructure:"created_by"`
	UpdatedBy    string              `json:"updated_by" mapstructure:"updated_by"`
	CreateTime   time.Time           `json:"create_time" mapstructure:"create_time"`
	UpdateTime   time.Time           `json:"update_time" mapstructure:"update_time"`
}

// Delivery is a standalone delivery record: an audience delivered to a
// destination outside any engagement. It mirrors the engagement's
// destination reference but lives in its own collection.
type Delivery struct {
	ID            string    `json:"id" mapstructure:"id"`
	AudienceID    string    `json:"audience_id" mapstructure:"audience_id"`
	DestinationID string    `json:"destination_id" mapstructure:"destination_id"`
	DeliveryJobID string    `json:"delivery_job_id" mapstructure:"delivery_job_id"`
	CreatedBy     string    `json:"created_by" mapstructure:"created_by"`
	CreateTime    time.Time `json:"create_time" mapstructure:"create_time"`
	UpdateTime    time.Time `json:"update_time" mapstructure:"update_time"`
}

// RecordDeliveryRequest is the payload for triggering a delivery
type RecordDeliveryRequest struct {
	AudienceID    string `json:"audience_id"`
	DestinationID string `json:"destination_id"`
	EngagementID  string `json:"engagement_id,omitempty"`
}

// CompleteDeliveryRequest is the terminal-transition payload reported
// back by the destination platform
type CompleteDeliveryRequest struct {
	JobID     string  `json:"-"`
	Succeeded bool    `json:"succeeded"`
	Size      int64   `json:"size"`
	MatchRate float64 `json:"match_rate"`
	Reason    string  `json:"reason,omitempty"`
}
