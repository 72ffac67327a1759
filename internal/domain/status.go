package domain

import "time"

// DeliveryStatus is the display vocabulary for delivery state, exposed
// on destination references, audiences and unscheduled engagements
type DeliveryStatus string

const (
	StatusDelivering   DeliveryStatus = "Delivering"
	StatusError        DeliveryStatus = "Error"
	StatusDelivered    DeliveryStatus = "Delivered"
	StatusNotDelivered DeliveryStatus = "NotDelivered"
)

// statusWeight orders delivery statuses by display precedence. An
// in-progress delivery dominates even a succeeded one because the
// audience is not at rest yet, and an error must stay visible next to
// successes.
var statusWeight = map[DeliveryStatus]int{
	StatusDelivering:   3,
	StatusError:        2,
	StatusDelivered:    1,
	StatusNotDelivered: 0,
}

// MapJobStatus maps a delivery job's state onto the display
// vocabulary. Unrecognized states map to Error, never propagate
// verbatim: an unknown state must not leak to API consumers.
func MapJobStatus(s DeliveryJobStatus) DeliveryStatus {
	switch s {
	case JobSucceeded:
		return StatusDelivered
	case JobInProgress, JobPending:
		return StatusDelivering
	case JobFailed:
		return StatusError
	default:
		return StatusError
	}
}

// WeighStatuses reduces a set of delivery statuses to the
// highest-precedence member. An empty set means nothing was ever
// delivered.
func WeighStatuses(statuses []DeliveryStatus) DeliveryStatus {
	result := StatusNotDelivered
	for _, s := range statuses {
		if statusWeight[s] > statusWeight[result] {
			result = s
		}
	}
	return result
}

// AudienceStatusIn computes the audience's status within one
// engagement from its destination references (which must already carry
// their derived Status).
func AudienceStatusIn(ref *AudienceRef) DeliveryStatus {
	statuses := make([]DeliveryStatus, 0, len(ref.Destinations))
	for _, dest := range ref.Destinations {
		if dest.LatestDeliveryJobID == "" {
			continue
		}
		statuses = append(statuses, dest.Status)
	}
	return WeighStatuses(statuses)
}

// ComputeEngagementStatus derives the engagement's aggregate status.
//
// Without a delivery schedule the engagement reflects the
// highest-precedence audience status. With a schedule, the schedule
// window decides: Active inside [start, end], Inactive outside. A
// manually set Inactive always wins; a manual Active never survives a
// computed Inactive (the asymmetry is intentional and mirrors the
// product behavior).
func ComputeEngagementStatus(e *Engagement, now time.Time) string {
	if e.ManualStatus == EngagementInactive {
		return string(EngagementInactive)
	}

	if e.Schedule != nil {
		if e.Schedule.WindowContains(now) {
			return string(EngagementActive)
		}
		return string(EngagementInactive)
	}

	statuses := make([]DeliveryStatus, 0, len(e.Audiences))
	for i := range e.Audiences {
		statuses = append(statuses, AudienceStatusIn(&e.Audiences[i]))
	}
	return string(WeighStatuses(statuses))
}
