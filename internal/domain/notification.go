package domain

import "time"

// NotificationType classifies a notification and decides its retention
type NotificationType string

const (
	NotificationInformational NotificationType = "informational"
	NotificationSuccess       NotificationType = "success"
	NotificationCritical      NotificationType = "critical"
)

// NotificationCategory names the subsystem a notification came from
type NotificationCategory string

const (
	CategoryDelivery     NotificationCategory = "delivery"
	CategoryDestinations NotificationCategory = "destinations"
	CategoryAudiences    NotificationCategory = "audiences"
	CategoryEngagements  NotificationCategory = "engagements"
)

// Retention per notification type
const (
	informationalTTL = 30 * 24 * time.Hour
	longLivedTTL     = 6 * 30 * 24 * time.Hour
)

// ExpiryFor computes the expiry timestamp for a notification type.
// Informational notifications are kept one month, success and critical
// six months.
func ExpiryFor(t NotificationType, createTime time.Time) time.Time {
	if t == NotificationInformational {
		return createTime.Add(informationalTTL)
	}
	return createTime.Add(longLivedTTL)
}

// Notification is a record of a significant state change, surfaced to
// clients by the notification sink
type Notification struct {
	ID          string               `json:"id" mapstructure:"id"`
	Type        NotificationType     `json:"type" mapstructure:"type"`
	Category    NotificationCategory `json:"category" mapstructure:"category"`
	Description string               `json:"description" mapstructure:"description"`
	Username    string               `json:"username" mapstructure:"username"`
	CreateTime  time.Time            `json:"create_time" mapstructure:"create_time"`
	ExpireTime  time.Time            `json:"expire_time" mapstructure:"expire_time"`
}
