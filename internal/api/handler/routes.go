package handler

import (
	"net/http"

	"github.com/vfg2006/audience-delivery-api/internal/api/handler/router"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/audiencing"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/delivering"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/destinating"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/engaging"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
)

func Healthcheck() []router.Route {
	return []router.Route{
		{
			Path:    "/healthcheck",
			Method:  http.MethodGet,
			Handler: HealthcheckHandler(),
		},
	}
}

func Audiences(service audiencing.AudienceService) []router.Route {
	return []router.Route{
		{
			Path:    "/v1/audiences",
			Method:  http.MethodPost,
			Handler: CreateAudience(service),
		},
		{
			Path:    "/v1/audiences",
			Method:  http.MethodGet,
			Handler: ListAudiences(service),
		},
		{
			Path:    "/v1/audiences/:id",
			Method:  http.MethodGet,
			Handler: GetAudience(service),
		},
		{
			Path:    "/v1/audiences/:id",
			Method:  http.MethodPut,
			Handler: UpdateAudience(service),
		},
		{
			Path:    "/v1/audiences/:id",
			Method:  http.MethodDelete,
			Handler: DeleteAudience(service),
		},
		{
			Path:    "/v1/audiences/:id/lookalikeable",
			Method:  http.MethodGet,
			Handler: GetAudienceLookalikeStatus(service),
		},
	}
}

func Engagements(service engaging.EngagementService) []router.Route {
	return []router.Route{
		{
			Path:    "/v1/engagements",
			Method:  http.MethodPost,
			Handler: CreateEngagement(service),
		},
		{
			Path:    "/v1/engagements",
			Method:  http.MethodGet,
			Handler: ListEngagements(service),
		},
		{
			Path:    "/v1/engagements/:id",
			Method:  http.MethodGet,
			Handler: GetEngagement(service),
		},
		{
			Path:    "/v1/engagements/:id",
			Method:  http.MethodPut,
			Handler: UpdateEngagement(service),
		},
		{
			Path:    "/v1/engagements/:id",
			Method:  http.MethodDelete,
			Handler: DeleteEngagement(service),
		},
		{
			Path:    "/v1/engagements/:id/audiences",
			Method:  http.MethodPost,
			Handler: AttachAudience(service),
		},
		{
			Path:    "/v1/engagements/:id/audiences/:audience_id",
			Method:  http.MethodDelete,
			Handler: DetachAudience(service),
		},
		{
			Path:    "/v1/engagements/:id/audiences/:audience_id/schedule",
			Method:  http.MethodPut,
			Handler: SetAudienceSchedule(service),
		},
		{
			Path:    "/v1/engagements/:id/audiences/:audience_id/destinations/:destination_id/schedule",
			Method:  http.MethodPut,
			Handler: SetDestinationSchedule(service),
		},
		{
			Path:    "/v1/engagements/:id/audiences/:audience_id/destinations/:destination_id/replace",
			Method:  http.MethodPut,
			Handler: SetReplaceAudienceFlag(service),
		},
	}
}

func Destinations(service destinating.DestinationService) []router.Route {
	return []router.Route{
		{
			Path:    "/v1/destinations",
			Method:  http.MethodGet,
			Handler: ListDestinations(service),
		},
		{
			Path:    "/v1/destinations/:id",
			Method:  http.MethodGet,
			Handler: GetDestination(service),
		},
		{
			Path:    "/v1/destinations/:id",
			Method:  http.MethodPut,
			Handler: UpdateDestination(service),
		},
	}
}

func Deliveries(service delivering.DeliveryTracker) []router.Route {
	return []router.Route{
		{
			Path:    "/v1/deliveries",
			Method:  http.MethodPost,
			Handler: RecordDelivery(service),
		},
		{
			Path:    "/v1/deliveries/jobs",
			Method:  http.MethodGet,
			Handler: ListDeliveryJobs(service),
		},
		{
			Path:    "/v1/deliveries/jobs/:id",
			Method:  http.MethodGet,
			Handler: GetDeliveryJob(service),
		},
		{
			Path:    "/v1/deliveries/jobs/:id/dispatch",
			Method:  http.MethodPost,
			Handler: DispatchDelivery(service),
		},
		{
			Path:    "/v1/deliveries/jobs/:id/complete",
			Method:  http.MethodPost,
			Handler: CompleteDelivery(service),
		},
		{
			Path:    "/v1/deliveries/jobs/:id/metrics",
			Method:  http.MethodPut,
			Handler: BackfillDeliveryMetrics(service),
		},
	}
}

func Notifications(service notifying.Notifier) []router.Route {
	return []router.Route{
		{
			Path:    "/v1/notifications",
			Method:  http.MethodGet,
			Handler: ListNotifications(service),
		},
	}
}

func CronJobs(services CronJobServices) []router.Route {
	return []router.Route{
		{
			Path:    "/v1/cron/:type/run",
			Method:  http.MethodPost,
			Handler: RunCronJob(services),
		},
		{
			Path:    "/v1/cron/status",
			Method:  http.MethodGet,
			Handler: GetCronStatus(services),
		},
	}
}
