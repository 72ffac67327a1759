package domain

import "time"

// DestinationRef is an engagement's reference to a destination for one
// of its audiences. Owned by the engagement document; it has no
// identity outside it.
type DestinationRef struct {
	ID string `json:"id" mapstructure:"id"`
	// CronSchedule is the per-destination override; when set it takes
	// precedence over the audience-level schedule
	CronSchedule string `json:"delivery_schedule,omitempty" mapstructure:"delivery_schedule"`
	// LatestDeliveryJobID points at the most recent delivery job for
	// this audience/destination pair within the engagement
	LatestDeliveryJobID string `json:"delivery_job_id,omitempty" mapstructure:"delivery_job_id"`
	// ReplaceAudience marks whether the next delivery fully replaces
	// the remote audience instead of appending to it
	ReplaceAudience bool `json:"replace_audience" mapstructure:"replace_audience"`

	// Status is derived from the latest delivery job, never stored
	Status DeliveryStatus `json:"status,omitempty" mapstructure:"-"`
	// NextRun is derived from the effective schedule, never stored
	NextRun *time.Time `json:"next_run,omitempty" mapstructure:"-"`
}

// AudienceRef is an engagement's reference to an audience together with
// the destinations that audience is delivered to. Owned by the
// engagement document.
type AudienceRef struct {
	ID           string           `json:"id" mapstructure:"id"`
	Destinations []DestinationRef `json:"destinations" mapstructure:"destinations"`
	// Schedule applies to all of the audience's destinations unless an
	// individual destination carries its own cron override
	Schedule *Schedule `json:"delivery_schedule,omitempty" mapstructure:"delivery_schedule"`

	// Status is derived, never stored
	Status DeliveryStatus `json:"status,omitempty" mapstructure:"-"`
}

// EngagementStatus is the aggregate state shown for an engagement
type EngagementStatus string

const (
	EngagementActive   EngagementStatus = "Active"
	EngagementInactive EngagementStatus = "Inactive"
)

// Engagement groups audiences and their destination deliveries,
// optionally on a recurring schedule. It is the sole owner of its
// embedded audience/destination reference records.
type Engagement struct {
	ID          string        `json:"id" mapstructure:"id"`
	Name        string        `json:"name" mapstructure:"name"`
	Description string        `json:"description" mapstructure:"description"`
	Audiences   []AudienceRef `json:"audiences" mapstructure:"audiences"`
	Schedule    *Schedule     `json:"delivery_schedule,omitempty" mapstructure:"delivery_schedule"`
	// ManualStatus is the operator-set status; only a manual Inactive
	// survives the computed status (see ComputeEngagementStatus)
	ManualStatus EngagementStatus `json:"manual_status,omitempty" mapstructure:"status"`
	Deleted      bool             `json:"deleted" mapstructure:"deleted"`
	CreatedBy    string           `json:"created_by" mapstructure:"created_by"`
	UpdatedBy    string           `json:"updated_by" mapstructure:"updated_by"`
	CreateTime   time.Time        `json:"create_time" mapstructure:"create_time"`
	UpdateTime   time.Time        `json:"update_time" mapstructure:"update_time"`

	// Status is derived at read time, never stored
	Status string `json:"status,omitempty" mapstructure:"-"`
}

// CreateEngagementRequest is the payload for creating an engagement
type CreateEngagementRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Audiences   []AudienceRef `json:"audiences,omitempty"`
	Schedule    *Schedule     `json:"delivery_schedule,omitempty"`
}

// UpdateEngagementRequest carries the mutable engagement fields.
// Pointer fields distinguish "not supplied" from zero values.
type UpdateEngagementRequest struct {
	ID           string            `json:"-"`
	Name         *string           `json:"name,omitempty"`
	Description  *string           `json:"description,omitempty"`
	ManualStatus *EngagementStatus `json:"status,omitempty"`
	Schedule     *Schedule         `json:"delivery_schedule,omitempty"`
}

// AttachAudienceRequest attaches an audience and its destinations to an
// engagement
type AttachAudienceRequest struct {
	EngagementID string           `json:"-"`
	AudienceID   string           `json:"audience_id"`
	Destinations []DestinationRef `json:"destinations"`
}
