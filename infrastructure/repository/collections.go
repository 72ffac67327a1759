package repository

import (
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

// Collection names accepted by the document store
const (
	CollectionAudiences     = "audiences"
	CollectionEngagements   = "engagements"
	CollectionDestinations  = "destinations"
	CollectionDeliveryJobs  = "delivery_jobs"
	CollectionDeliveries    = "deliveries"
	CollectionNotifications = "notifications"
)

// Metadata keys stamped by the adapter itself; callers can never
// supply them as fields
const (
	FieldID         = "id"
	FieldCreateTime = "create_time"
	FieldCreatedBy  = "created_by"
	FieldUpdateTime = "update_time"
	FieldUpdatedBy  = "updated_by"
	FieldDeleted    = "deleted"
)

// collectionSchema describes one collection: the typed struct its
// fields must decode into (the whitelist), the fields a create must
// supply, and the keys that must be unique among non-deleted
// documents.
type collectionSchema struct {
	newFields func() any
	required  []string
	unique    []string
}

// Whitelist structs. A supplied field is valid exactly when it decodes
// into the collection's struct; stray keys surface through the decode
// metadata instead of a runtime key-set comparison.
type audienceFields struct {
	Name        string                  `mapstructure:"name"`
	Filters     []domain.FilterSection  `mapstructure:"filters"`
	Size        int64                   `mapstructure:"size"`
	IsLookalike bool                    `mapstructure:"is_lookalike"`
	Lookalike   *domain.LookalikeParams `mapstructure:"lookalike"`
}

type engagementFields struct {
	Name        string                  `mapstructure:"name"`
	Description string                  `mapstructure:"description"`
	Audiences   []domain.AudienceRef    `mapstructure:"audiences"`
	Schedule    *domain.Schedule        `mapstructure:"delivery_schedule"`
	Status      domain.EngagementStatus `mapstructure:"status"`
}

type destinationFields struct {
	Name         string                     `mapstructure:"name"`
	PlatformType domain.PlatformType        `mapstructure:"platform_type"`
	Category     domain.DestinationCategory `mapstructure:"category"`
	Status       domain.ConnectionStatus    `mapstructure:"status"`
	Enabled      bool                       `mapstructure:"enabled"`
	Added        bool                       `mapstructure:"added"`
	IsAdPlatform bool                       `mapstructure:"is_ad_platform"`
	SecretName   string                     `mapstructure:"secret_name"`
}

type deliveryJobFields struct {
	AudienceID    string                     `mapstructure:"audience_id"`
	DestinationID string                     `mapstructure:"destination_id"`
	EngagementID  string                     `mapstructure:"engagement_id"`
	Status        domain.DeliveryJobStatus   `mapstructure:"status"`
	Size          int64                      `mapstructure:"size"`
	MatchRate     float64                    `mapstructure:"match_rate"`
	Campaigns     []domain.Campaign          `mapstructure:"campaigns"`
	Metrics       *domain.PerformanceMetrics `mapstructure:"metrics"`
	StartTime     *time.Time                 `mapstructure:"start_time"`
	EndTime       *time.Time                 `mapstructure:"end_time"`
}

type deliveryFields struct {
	AudienceID    string `mapstructure:"audience_id"`
	DestinationID string `mapstructure:"destination_id"`
	DeliveryJobID string `mapstructure:"delivery_job_id"`
}

type notificationFields struct {
	Type        domain.NotificationType     `mapstructure:"type"`
	Category    domain.NotificationCategory `mapstructure:"category"`
	Description string                      `mapstructure:"description"`
	Username    string                      `mapstructure:"username"`
	ExpireTime  time.Time                   `mapstructure:"expire_time"`
}

var collectionRegistry = map[string]collectionSchema{
	CollectionAudiences: {
		newFields: func() any { return &audienceFields{} },
		required:  []string{"name"},
		unique:    []string{"name"},
	},
	CollectionEngagements: {
		newFields: func() any { return &engagementFields{} },
		required:  []string{"name"},
		unique:    []string{"name"},
	},
	CollectionDestinations: {
		newFields: func() any { return &destinationFields{} },
		required:  []string{"name", "platform_type"},
		unique:    []string{"platform_type"},
	},
	CollectionDeliveryJobs: {
		newFields: func() any { return &deliveryJobFields{} },
		required:  []string{"audience_id", "destination_id", "status"},
	},
	CollectionDeliveries: {
		newFields: func() any { return &deliveryFields{} },
		required:  []string{"audience_id", "destination_id", "delivery_job_id"},
	},
	CollectionNotifications: {
		newFields: func() any { return &notificationFields{} },
		required:  []string{"type", "category", "description"},
	},
}

// schemaFor resolves a collection's schema
func schemaFor(collection string) (collectionSchema, error) {
	schema, ok := collectionRegistry[collection]
	if !ok {
		return collectionSchema{}, ErrUnsupportedCollection
	}
	return schema, nil
}

// validateFields checks the supplied fields against the collection's
// whitelist struct. When requireAll is set (create path) the schema's
// required fields must all be present.
func validateFields(collection string, fields map[string]any, requireAll bool) error {
	schema, err := schemaFor(collection)
	if err != nil {
		return err
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     schema.newFields(),
		Metadata:   &md,
		DecodeHook: mapstructure.StringToTimeHookFunc(timeLayout),
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(fields); err != nil {
		return invalidFields(collection, []string{err.Error()})
	}

	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		return invalidFields(collection, md.Unused)
	}

	if requireAll {
		var missing []string
		for _, key := range schema.required {
			if _, ok := fields[key]; !ok {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return missingFields(collection, missing)
		}
	}

	return nil
}
