package domain

import "time"

// FilterAggregator combines the rules of a filter section
type FilterAggregator string

const (
	AggregatorAll FilterAggregator = "ALL"
	AggregatorAny FilterAggregator = "ANY"
)

// FilterRule is one field/operator/value condition on customer records
type FilterRule struct {
	Field    string `json:"field" mapstructure:"field"`
	Operator string `json:"operator" mapstructure:"operator"`
	Value    any    `json:"value" mapstructure:"value"`
}

// FilterSection groups rules under an ALL/ANY aggregator
type FilterSection struct {
	Aggregator FilterAggregator `json:"aggregator" mapstructure:"aggregator"`
	Rules      []FilterRule     `json:"rules" mapstructure:"rules"`
}

// LookalikeParams are set only when the audience is a lookalike
type LookalikeParams struct {
	SourceAudienceID   string  `json:"source_audience_id" mapstructure:"source_audience_id"`
	SourceAudienceName string  `json:"source_audience_name" mapstructure:"source_audience_name"`
	SourceSize         int64   `json:"source_size" mapstructure:"source_size"`
	TargetSizePercent  float64 `json:"target_size_percent" mapstructure:"target_size_percent"`
	TargetCountry      string  `json:"target_country" mapstructure:"target_country"`
}

// LookalikeStatus is the audience's eligibility to source a lookalike
type LookalikeStatus string

const (
	// LookalikeDisabled: no delivery to an ad platform exists
	LookalikeDisabled LookalikeStatus = "Disabled"
	// LookalikeInactive: delivered to an ad platform but still inside
	// the post-delivery cool-down, or not yet succeeded
	LookalikeInactive LookalikeStatus = "Inactive"
	// LookalikeActive: a succeeded ad-platform delivery is old enough
	LookalikeActive LookalikeStatus = "Active"
)

// LookalikeCooldown is how long after a successful delivery an audience
// must wait before it can source a lookalike. The destination platform
// needs time to finish indexing the delivered records.
const LookalikeCooldown = 30 * time.Minute

// Audience is a named, filterable segment of customer records
type Audience struct {
	ID              string           `json:"id" mapstructure:"id"`
	Name            string           `json:"name" mapstructure:"name"`
	Filters         []FilterSection  `json:"filters" mapstructure:"filters"`
	Size            int64            `json:"size" mapstructure:"size"`
	IsLookalike     bool             `json:"is_lookalike" mapstructure:"is_lookalike"`
	Lookalike       *LookalikeParams `json:"lookalike,omitempty" mapstructure:"lookalike"`
	Deleted         bool             `json:"deleted" mapstructure:"deleted"`
	CreatedBy       string           `json:"created_by" mapstructure:"created_by"`
	UpdatedBy       string           `json:"updated_by" mapstructure:"updated_by"`
	CreateTime      time.Time        `json:"create_time" mapstructure:"create_time"`
	UpdateTime      time.Time        `json:"update_time" mapstructure:"update_time"`
	LookalikeStatus LookalikeStatus  `json:"lookalikeable,omitempty" mapstructure:"-"`
}

// CreateAudienceRequest is the payload for creating an audience
type CreateAudienceRequest struct {
	Name      string           `json:"name"`
	Filters   []FilterSection  `json:"filters"`
	Lookalike *LookalikeParams `json:"lookalike,omitempty"`
}

// UpdateAudienceRequest carries the mutable audience fields
type UpdateAudienceRequest struct {
	ID      string           `json:"-"`
	Name    *string          `json:"name,omitempty"`
	Filters *[]FilterSection `json:"filters,omitempty"`
}
