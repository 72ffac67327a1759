package domain

// PlatformType identifies a delivery platform integration
type PlatformType string

const (
	PlatformFacebook  PlatformType = "facebook"
	PlatformGoogle    PlatformType = "google-ads"
	PlatformSFMC      PlatformType = "sfmc"
	PlatformSendgrid  PlatformType = "sendgrid"
	PlatformQualtrics PlatformType = "qualtrics"
	PlatformAmazon    PlatformType = "amazon-advertising"
	PlatformLiveRamp  PlatformType = "liveramp"
)

// DestinationCategory groups platforms for display purposes
type DestinationCategory string

const (
	CategoryAdvertising DestinationCategory = "advertising"
	CategoryMarketing   DestinationCategory = "marketing"
	CategorySurvey      DestinationCategory = "survey"
	CategoryAnalytics   DestinationCategory = "analytics"
	CategoryCommerce    DestinationCategory = "commerce"
	CategoryStorage     DestinationCategory = "storage"
	CategoryReporting   DestinationCategory = "reporting"
)

// ConnectionStatus is the destination's connection-health state
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionPending ConnectionStatus = "pending"
	ConnectionFailed  ConnectionStatus = "failed"
)

// Destination is an external delivery platform that can receive an audience
type Destination struct {
	ID           string              `json:"id" mapstructure:"id"`
	Name         string              `json:"name" mapstructure:"name"`
	PlatformType PlatformType        `json:"platform_type" mapstructure:"platform_type"`
	Category     DestinationCategory `json:"category" mapstructure:"category"`
	Status       ConnectionStatus    `json:"status" mapstructure:"status"`
	Enabled      bool                `json:"enabled" mapstructure:"enabled"`
	Added        bool                `json:"added" mapstructure:"added"`
	IsAdPlatform bool                `json:"is_ad_platform" mapstructure:"is_ad_platform"`
	// Credentials are referenced by secret name only, never stored raw
	SecretName string `json:"secret_name,omitempty" mapstructure:"secret_name"`
}

// DestinationCatalog is the fixed set of supported delivery platforms.
// Destinations are created once from this catalog and only their status,
// enabled and added flags change afterwards.
var DestinationCatalog = []Destination{
	{Name: "Facebook", PlatformType: PlatformFacebook, Category: CategoryAdvertising, IsAdPlatform: true},
	{Name: "Google Ads", PlatformType: PlatformGoogle, Category: CategoryAdvertising, IsAdPlatform: true},
	{Name: "Salesforce Marketing Cloud", PlatformType: PlatformSFMC, Category: CategoryMarketing},
	{Name: "Sendgrid", PlatformType: PlatformSendgrid, Category: CategoryMarketing},
	{Name: "Qualtrics", PlatformType: PlatformQualtrics, Category: CategorySurvey},
	{Name: "Amazon Advertising", PlatformType: PlatformAmazon, Category: CategoryAdvertising, IsAdPlatform: true},
	{Name: "LiveRamp", PlatformType: PlatformLiveRamp, Category: CategoryStorage},
}

// UpdateDestinationRequest carries the mutable destination fields.
// Pointer fields distinguish "not supplied" from zero values.
type UpdateDestinationRequest struct {
	ID      string            `json:"-"`
	Enabled *bool             `json:"enabled,omitempty"`
	Added   *bool             `json:"added,omitempty"`
	Status  *ConnectionStatus `json:"status,omitempty"`
}
