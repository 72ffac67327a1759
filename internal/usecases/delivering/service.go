package delivering

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
)

// DeliveryTracker owns the delivery job state machine: jobs are created
// Pending, dispatched to InProgress and finished in a terminal state by
// Complete. Terminal jobs only accept metrics backfill.
type DeliveryTracker interface {
	RecordDelivery(ctx context.Context, req *domain.RecordDeliveryRequest, actor string) (*domain.DeliveryJob, error)
	Dispatch(ctx context.Context, jobID, actor string) (*domain.DeliveryJob, error)
	Complete(ctx context.Context, req *domain.CompleteDeliveryRequest, actor string) (*domain.DeliveryJob, error)
	BackfillMetrics(ctx context.Context, jobID string, metrics *domain.PerformanceMetrics, actor string) (*domain.DeliveryJob, error)
	GetJob(ctx context.Context, jobID string) (*domain.DeliveryJob, error)
	ListJobs(ctx context.Context, audienceID string, pageSize, pageNumber int) ([]*domain.DeliveryJob, int64, error)
}

type Service struct {
	store      repository.DocumentStore
	connectors *adplatform.Registry
	notifier   notifying.Notifier
}

func NewService(store repository.DocumentStore, connectors *adplatform.Registry, notifier notifying.Notifier) DeliveryTracker {
	return &Service{
		store:      store,
		connectors: connectors,
		notifier:   notifier,
	}
}

// RecordDelivery creates a Pending delivery job for an audience and
// destination. Engagement deliveries also move the engagement's
// latest-job pointer; standalone deliveries get their own delivery
// record instead. The job write and the pointer write are separate
// statements, so a crash between them can leave an engagement pointing
// at its previous job until the next delivery.
func (s *Service) RecordDelivery(ctx context.Context, req *domain.RecordDeliveryRequest, actor string) (*domain.DeliveryJob, error) {
	audience, err := s.loadAudience(ctx, req.AudienceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadDestination(ctx, req.DestinationID); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"audience_id":    req.AudienceID,
		"destination_id": req.DestinationID,
		"status":         domain.JobPending,
		"size":           audience.Size,
	}
	if req.EngagementID != "" {
		// Validate before the job write so a bad engagement id does not
		// leave an orphaned job behind
		if _, err := s.loadEngagement(ctx, req.EngagementID); err != nil {
			return nil, err
		}
		fields["engagement_id"] = req.EngagementID
	}

	doc, err := s.store.Create(ctx, repository.CollectionDeliveryJobs, fields, actor)
	if err != nil {
		return nil, err
	}

	job := &domain.DeliveryJob{}
	if err := repository.DecodeDocument(doc, job); err != nil {
		return nil, err
	}

	if req.EngagementID != "" {
		if err := s.pointEngagementAt(ctx, req.EngagementID, req.AudienceID, req.DestinationID, job.ID, actor); err != nil {
			return nil, err
		}
	} else {
		_, err := s.store.Create(ctx, repository.CollectionDeliveries, map[string]any{
			"audience_id":     req.AudienceID,
			"destination_id":  req.DestinationID,
			"delivery_job_id": job.ID,
		}, actor)
		if err != nil {
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"job_id":         job.ID,
		"audience_id":    req.AudienceID,
		"destination_id": req.DestinationID,
		"engagement_id":  req.EngagementID,
	}).Info("delivery job recorded")

	return job, nil
}

// Dispatch moves a Pending job to InProgress and pushes the audience to
// the destination's platform. A push failure finishes the job as Failed
// immediately, since no platform callback will ever arrive for it; a
// successful push leaves the job InProgress until Complete reports the
// platform's result.
func (s *Service) Dispatch(ctx context.Context, jobID, actor string) (*domain.DeliveryJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobPending {
		return nil, errors.Wrapf(ErrInvalidTransition,
			"job %s is %s, only Pending jobs can be dispatched", jobID, job.Status)
	}

	audience, err := s.loadAudience(ctx, job.AudienceID)
	if err != nil {
		return nil, err
	}
	dest, err := s.loadDestination(ctx, job.DestinationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc, err := s.store.Update(ctx, repository.CollectionDeliveryJobs, jobID, map[string]any{
		"status":     domain.JobInProgress,
		"start_time": now,
	}, actor)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownJob, "%s not found", jobID)
	}
	if err := repository.DecodeDocument(doc, job); err != nil {
		return nil, err
	}

	result, err := s.connectors.For(dest.PlatformType).Deliver(ctx, dest, &adplatform.DeliveryRequest{
		AudienceID:   audience.ID,
		AudienceName: audience.Name,
		Size:         audience.Size,
		Replace:      s.replaceFlagFor(ctx, job),
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"job_id":      jobID,
			"destination": dest.Name,
			"error":       err.Error(),
		}).Error("delivery dispatch failed")

		return s.Complete(ctx, &domain.CompleteDeliveryRequest{
			JobID:  jobID,
			Reason: err.Error(),
		}, actor)
	}

	updates := map[string]any{
		"size":       result.Size,
		"match_rate": result.MatchRate,
	}
	if len(result.Campaigns) > 0 {
		updates["campaigns"] = result.Campaigns
	}
	doc, err = s.store.Update(ctx, repository.CollectionDeliveryJobs, jobID, updates, actor)
	if err != nil {
		return nil, err
	}
	if err := repository.DecodeDocument(doc, job); err != nil {
		return nil, err
	}

	return job, nil
}

// Complete finishes an InProgress job with the result the destination
// platform reported. Success refreshes the audience's size with the
// delivered count and both outcomes emit a notification.
func (s *Service) Complete(ctx context.Context, req *domain.CompleteDeliveryRequest, actor string) (*domain.DeliveryJob, error) {
	job, err := s.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobInProgress {
		return nil, errors.Wrapf(ErrInvalidTransition,
			"job %s is %s, only InProgress jobs can be completed", req.JobID, job.Status)
	}

	status := domain.JobFailed
	if req.Succeeded {
		status = domain.JobSucceeded
	}

	updates := map[string]any{
		"status":   status,
		"end_time": time.Now().UTC(),
	}
	if req.Succeeded {
		if req.Size > 0 {
			updates["size"] = req.Size
		}
		if req.MatchRate > 0 {
			updates["match_rate"] = req.MatchRate
		}
	}

	doc, err := s.store.Update(ctx, repository.CollectionDeliveryJobs, req.JobID, updates, actor)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownJob, "%s not found", req.JobID)
	}
	if err := repository.DecodeDocument(doc, job); err != nil {
		return nil, err
	}

	if req.Succeeded && job.Size > 0 {
		// The audience's size reflects the most recently delivered count
		if _, err := s.store.Update(ctx, repository.CollectionAudiences, job.AudienceID, map[string]any{
			"size": job.Size,
		}, actor); err != nil {
			logrus.WithFields(logrus.Fields{
				"job_id":      job.ID,
				"audience_id": job.AudienceID,
			}).Warn("could not refresh audience size after delivery")
		}
	}

	s.notifyCompletion(ctx, job, req.Reason, actor)

	return job, nil
}

// BackfillMetrics attaches platform performance metrics to a finished
// job. This is the only mutation a terminal job accepts.
func (s *Service) BackfillMetrics(ctx context.Context, jobID string, metrics *domain.PerformanceMetrics, actor string) (*domain.DeliveryJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, errors.Wrapf(ErrJobNotTerminal,
			"job %s is %s, metrics can only be backfilled on finished jobs", jobID, job.Status)
	}

	doc, err := s.store.Update(ctx, repository.CollectionDeliveryJobs, jobID, map[string]any{
		"metrics": metrics,
	}, actor)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownJob, "%s not found", jobID)
	}
	if err := repository.DecodeDocument(doc, job); err != nil {
		return nil, err
	}

	return job, nil
}

// GetJob loads one delivery job by id
func (s *Service) GetJob(ctx context.Context, jobID string) (*domain.DeliveryJob, error) {
	doc, err := s.store.Get(ctx, repository.CollectionDeliveryJobs, map[string]any{repository.FieldID: jobID}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownJob, "%s not found", jobID)
	}

	job := &domain.DeliveryJob{}
	if err := repository.DecodeDocument(doc, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns an audience's delivery jobs, newest first. An empty
// audience id lists across all audiences.
func (s *Service) ListJobs(ctx context.Context, audienceID string, pageSize, pageNumber int) ([]*domain.DeliveryJob, int64, error) {
	opts := repository.QueryOptions{
		SortBy:         repository.FieldCreateTime,
		SortDescending: true,
		PageSize:       pageSize,
		PageNumber:     pageNumber,
	}
	if audienceID != "" {
		opts.Filter = map[string]any{"audience_id": audienceID}
	}

	page, err := s.store.GetMany(ctx, repository.CollectionDeliveryJobs, opts)
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]*domain.DeliveryJob, 0, len(page.Documents))
	for _, doc := range page.Documents {
		job := &domain.DeliveryJob{}
		if err := repository.DecodeDocument(doc, job); err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, page.Total, nil
}

func (s *Service) loadAudience(ctx context.Context, id string) (*domain.Audience, error) {
	doc, err := s.store.Get(ctx, repository.CollectionAudiences, map[string]any{repository.FieldID: id}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownAudience, "%s not found", id)
	}

	audience := &domain.Audience{}
	if err := repository.DecodeDocument(doc, audience); err != nil {
		return nil, err
	}
	return audience, nil
}

func (s *Service) loadDestination(ctx context.Context, id string) (*domain.Destination, error) {
	doc, err := s.store.Get(ctx, repository.CollectionDestinations, map[string]any{repository.FieldID: id}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownDestination, "%s not found", id)
	}

	dest := &domain.Destination{}
	if err := repository.DecodeDocument(doc, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (s *Service) loadEngagement(ctx context.Context, id string) (*domain.Engagement, error) {
	doc, err := s.store.Get(ctx, repository.CollectionEngagements, map[string]any{repository.FieldID: id}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownEngagement, "%s not found", id)
	}

	engagement := &domain.Engagement{}
	if err := repository.DecodeDocument(doc, engagement); err != nil {
		return nil, err
	}
	return engagement, nil
}

// pointEngagementAt records jobID as the latest delivery job on the
// engagement's matching audience/destination reference
func (s *Service) pointEngagementAt(ctx context.Context, engagementID, audienceID, destinationID, jobID, actor string) error {
	engagement, err := s.loadEngagement(ctx, engagementID)
	if err != nil {
		return err
	}

	found := false
	for i := range engagement.Audiences {
		if engagement.Audiences[i].ID != audienceID {
			continue
		}
		for j := range engagement.Audiences[i].Destinations {
			if engagement.Audiences[i].Destinations[j].ID == destinationID {
				engagement.Audiences[i].Destinations[j].LatestDeliveryJobID = jobID
				found = true
			}
		}
	}
	if !found {
		return errors.Wrapf(ErrUnknownDestination,
			"engagement %s has no destination %s for audience %s", engagementID, destinationID, audienceID)
	}

	_, err = s.store.Update(ctx, repository.CollectionEngagements, engagementID, map[string]any{
		"audiences": engagement.Audiences,
	}, actor)
	return err
}

// replaceFlagFor resolves whether the delivery should replace the
// remote audience, from the engagement's destination reference.
// Standalone deliveries always append.
func (s *Service) replaceFlagFor(ctx context.Context, job *domain.DeliveryJob) bool {
	if job.EngagementID == "" {
		return false
	}
	engagement, err := s.loadEngagement(ctx, job.EngagementID)
	if err != nil {
		return false
	}
	for i := range engagement.Audiences {
		if engagement.Audiences[i].ID != job.AudienceID {
			continue
		}
		for _, dest := range engagement.Audiences[i].Destinations {
			if dest.ID == job.DestinationID {
				return dest.ReplaceAudience
			}
		}
	}
	return false
}

func (s *Service) notifyCompletion(ctx context.Context, job *domain.DeliveryJob, reason, actor string) {
	notificationType := domain.NotificationSuccess
	description := fmt.Sprintf("Audience %s delivered to destination %s (%d records)",
		job.AudienceID, job.DestinationID, job.Size)
	if job.Status == domain.JobFailed {
		notificationType = domain.NotificationCritical
		description = fmt.Sprintf("Delivery of audience %s to destination %s failed",
			job.AudienceID, job.DestinationID)
		if reason != "" {
			description = fmt.Sprintf("%s: %s", description, reason)
		}
	}

	if _, err := s.notifier.Notify(ctx, notificationType, domain.CategoryDelivery, description, actor); err != nil {
		logrus.WithFields(logrus.Fields{
			"job_id": job.ID,
			"error":  err.Error(),
		}).Warn("could not record delivery notification")
	}
}
