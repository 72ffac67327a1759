package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapJobStatus(t *testing.T) {
	tests := []struct {
		jobStatus DeliveryJobStatus
		expected  DeliveryStatus
	}{
		{JobSucceeded, StatusDelivered},
		{JobInProgress, StatusDelivering},
		{JobPending, StatusDelivering},
		{JobFailed, StatusError},
		// Unknown states must never leak through as-is
		{DeliveryJobStatus("Corrupted"), StatusError},
		{DeliveryJobStatus(""), StatusError},
	}

	for _, tt := range tests {
		t.Run(string(tt.jobStatus), func(t *testing.T) {
			assert.Equal(t, tt.expected, MapJobStatus(tt.jobStatus))
		})
	}
}

func TestWeighStatuses(t *testing.T) {
	tests := []struct {
		name     string
		statuses []DeliveryStatus
		expected DeliveryStatus
	}{
		{"empty set means nothing delivered", nil, StatusNotDelivered},
		{"delivering dominates delivered", []DeliveryStatus{StatusDelivered, StatusDelivering}, StatusDelivering},
		{"delivering dominates error", []DeliveryStatus{StatusError, StatusDelivering}, StatusDelivering},
		{"error dominates delivered", []DeliveryStatus{StatusDelivered, StatusError, StatusDelivered}, StatusError},
		{"all delivered stays delivered", []DeliveryStatus{StatusDelivered, StatusDelivered}, StatusDelivered},
		{"order does not matter", []DeliveryStatus{StatusDelivering, StatusDelivered, StatusError}, StatusDelivering},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WeighStatuses(tt.statuses))
		})
	}
}

func TestAudienceStatusIn(t *testing.T) {
	t.Run("destinations without a delivery are skipped", func(t *testing.T) {
		ref := &AudienceRef{
			Destinations: []DestinationRef{
				{ID: "D1"}, // never delivered
				{ID: "D2", LatestDeliveryJobID: "J1", Status: StatusDelivered},
			},
		}
		assert.Equal(t, StatusDelivered, AudienceStatusIn(ref))
	})

	t.Run("no deliveries at all means NotDelivered", func(t *testing.T) {
		ref := &AudienceRef{
			Destinations: []DestinationRef{{ID: "D1"}, {ID: "D2"}},
		}
		assert.Equal(t, StatusNotDelivered, AudienceStatusIn(ref))
	})
}

func TestComputeEngagementStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("manual inactive always wins", func(t *testing.T) {
		e := &Engagement{
			ManualStatus: EngagementInactive,
			Schedule: &Schedule{
				StartDate: datePtr(now.Add(-time.Hour)),
				EndDate:   datePtr(now.Add(time.Hour)),
			},
		}
		assert.Equal(t, string(EngagementInactive), ComputeEngagementStatus(e, now))
	})

	t.Run("manual active does not override the window", func(t *testing.T) {
		e := &Engagement{
			ManualStatus: EngagementActive,
			Schedule: &Schedule{
				StartDate: datePtr(now.Add(24 * time.Hour)),
			},
		}
		assert.Equal(t, string(EngagementInactive), ComputeEngagementStatus(e, now))
	})

	t.Run("scheduled engagement inside window is active", func(t *testing.T) {
		e := &Engagement{
			Schedule: &Schedule{
				StartDate: datePtr(now.Add(-time.Hour)),
				EndDate:   datePtr(now.Add(time.Hour)),
			},
		}
		assert.Equal(t, string(EngagementActive), ComputeEngagementStatus(e, now))
	})

	t.Run("unscheduled engagement weighs audience statuses", func(t *testing.T) {
		e := &Engagement{
			Audiences: []AudienceRef{
				{Destinations: []DestinationRef{
					{ID: "D1", LatestDeliveryJobID: "J1", Status: StatusDelivered},
				}},
				{Destinations: []DestinationRef{
					{ID: "D2", LatestDeliveryJobID: "J2", Status: StatusError},
				}},
			},
		}
		assert.Equal(t, string(StatusError), ComputeEngagementStatus(e, now))
	})

	t.Run("unscheduled engagement without deliveries is NotDelivered", func(t *testing.T) {
		e := &Engagement{}
		assert.Equal(t, string(StatusNotDelivered), ComputeEngagementStatus(e, now))
	})
}

func TestExpiryFor(t *testing.T) {
	createTime := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, createTime.Add(30*24*time.Hour), ExpiryFor(NotificationInformational, createTime))
	assert.Equal(t, createTime.Add(6*30*24*time.Hour), ExpiryFor(NotificationSuccess, createTime))
	assert.Equal(t, createTime.Add(6*30*24*time.Hour), ExpiryFor(NotificationCritical, createTime))
}
