package engaging

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

// EngagementService manages engagements and the audience/destination
// graph they own. Read operations return hydrated engagements: derived
// statuses and next-run times are computed on the way out, never
// stored.
type EngagementService interface {
	Create(ctx context.Context, req *domain.CreateEngagementRequest, actor string) (*domain.Engagement, error)
	Get(ctx context.Context, id string) (*domain.Engagement, error)
	List(ctx context.Context, pageSize, pageNumber int) ([]*domain.Engagement, int64, error)
	Update(ctx context.Context, req *domain.UpdateEngagementRequest, actor string) (*domain.Engagement, error)
	Delete(ctx context.Context, id, actor string, hard bool) error

	AttachAudience(ctx context.Context, req *domain.AttachAudienceRequest, actor string) (*domain.Engagement, error)
	DetachAudience(ctx context.Context, engagementID, audienceID, actor string) (*domain.Engagement, error)
	SetAudienceSchedule(ctx context.Context, engagementID, audienceID string, schedule *domain.Schedule, actor string) (*domain.Engagement, error)
	SetDestinationSchedule(ctx context.Context, engagementID, audienceID, destinationID, cronExpr, actor string) (*domain.Engagement, error)
	SetReplaceAudienceFlag(ctx context.Context, engagementID, audienceID, destinationID string, replace bool, actor string) (*domain.Engagement, error)
}

type Service struct {
	store repository.DocumentStore
	now   func() time.Time
}

func NewService(store repository.DocumentStore) EngagementService {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new engagement. Referenced audiences and
// destinations must exist; attached audiences must be distinct.
func (s *Service) Create(ctx context.Context, req *domain.CreateEngagementRequest, actor string) (*domain.Engagement, error) {
	if req.Schedule != nil {
		if err := req.Schedule.Validate(); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(req.Audiences))
	for _, ref := range req.Audiences {
		if _, dup := seen[ref.ID]; dup {
			return nil, errors.Wrapf(ErrDuplicateAudience, "audience %s", ref.ID)
		}
		seen[ref.ID] = struct{}{}
	}

	if err := s.validateRefs(ctx, req.Audiences); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"name":        req.Name,
		"description": req.Description,
		"audiences":   req.Audiences,
	}
	if req.Schedule != nil {
		fields["delivery_schedule"] = req.Schedule
	}

	doc, err := s.store.Create(ctx, repository.CollectionEngagements, fields, actor)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateDocument) {
			return nil, errors.Wrapf(ErrDuplicateEngagementName, "%q", req.Name)
		}
		return nil, err
	}

	engagement := &domain.Engagement{}
	if err := repository.DecodeDocument(doc, engagement); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, engagement); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"engagement_id": engagement.ID,
		"name":          engagement.Name,
		"audiences":     len(engagement.Audiences),
	}).Info("engagement created")

	return engagement, nil
}

// Get loads one engagement with derived statuses and next-run times
func (s *Service) Get(ctx context.Context, id string) (*domain.Engagement, error) {
	engagement, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, engagement); err != nil {
		return nil, err
	}
	return engagement, nil
}

// List returns hydrated engagements, newest first
func (s *Service) List(ctx context.Context, pageSize, pageNumber int) ([]*domain.Engagement, int64, error) {
	page, err := s.store.GetMany(ctx, repository.CollectionEngagements, repository.QueryOptions{
		SortBy:         repository.FieldCreateTime,
		SortDescending: true,
		PageSize:       pageSize,
		PageNumber:     pageNumber,
	})
	if err != nil {
		return nil, 0, err
	}

	engagements := make([]*domain.Engagement, 0, len(page.Documents))
	for _, doc := range page.Documents {
		engagement := &domain.Engagement{}
		if err := repository.DecodeDocument(doc, engagement); err != nil {
			return nil, 0, err
		}
		if err := s.hydrate(ctx, engagement); err != nil {
			return nil, 0, err
		}
		engagements = append(engagements, engagement)
	}

	return engagements, page.Total, nil
}

// Update changes the engagement's own fields. The manual status only
// matters when set to Inactive; a manual Active never overrides a
// computed Inactive.
func (s *Service) Update(ctx context.Context, req *domain.UpdateEngagementRequest, actor string) (*domain.Engagement, error) {
	fields := map[string]any{}
	if req.Name != nil {
		existing, err := s.store.Get(ctx, repository.CollectionEngagements, map[string]any{"name": *req.Name}, false)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID() != req.ID {
			return nil, errors.Wrapf(ErrDuplicateEngagementName, "%q", *req.Name)
		}
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.ManualStatus != nil {
		fields["status"] = *req.ManualStatus
	}
	if req.Schedule != nil {
		if err := req.Schedule.Validate(); err != nil {
			return nil, err
		}
		fields["delivery_schedule"] = req.Schedule
	}
	if len(fields) == 0 {
		return s.Get(ctx, req.ID)
	}

	doc, err := s.store.Update(ctx, repository.CollectionEngagements, req.ID, fields, actor)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownEngagement, "%s not found", req.ID)
	}

	engagement := &domain.Engagement{}
	if err := repository.DecodeDocument(doc, engagement); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, engagement); err != nil {
		return nil, err
	}
	return engagement, nil
}

// Delete removes an engagement, softly unless hard is set. The
// engagement owns its embedded references, so they go with it; delivery
// jobs are independent records and survive.
func (s *Service) Delete(ctx context.Context, id, actor string, hard bool) error {
	deleted, err := s.store.Delete(ctx, repository.CollectionEngagements, map[string]any{repository.FieldID: id}, actor, hard)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.Wrapf(ErrUnknownEngagement, "%s not found", id)
	}
	return nil
}

// AttachAudience adds an audience and its destination references to the
// engagement. The audience and every referenced destination must exist
// and the audience must not already be attached; on any failure the
// engagement is left unmodified.
func (s *Service) AttachAudience(ctx context.Context, req *domain.AttachAudienceRequest, actor string) (*domain.Engagement, error) {
	engagement, err := s.load(ctx, req.EngagementID)
	if err != nil {
		return nil, err
	}

	for _, ref := range engagement.Audiences {
		if ref.ID == req.AudienceID {
			return nil, errors.Wrapf(ErrDuplicateAudience,
				"audience %s in engagement %s", req.AudienceID, req.EngagementID)
		}
	}

	newRef := domain.AudienceRef{
		ID:           req.AudienceID,
		Destinations: req.Destinations,
	}
	if err := s.validateRefs(ctx, []domain.AudienceRef{newRef}); err != nil {
		return nil, err
	}

	engagement.Audiences = append(engagement.Audiences, newRef)
	return s.saveAudiences(ctx, engagement, actor)
}

// DetachAudience removes an audience reference from the engagement.
// Detaching an audience that is not attached is a no-op.
func (s *Service) DetachAudience(ctx context.Context, engagementID, audienceID, actor string) (*domain.Engagement, error) {
	engagement, err := s.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	kept := engagement.Audiences[:0]
	removed := false
	for _, ref := range engagement.Audiences {
		if ref.ID == audienceID {
			removed = true
			continue
		}
		kept = append(kept, ref)
	}
	if !removed {
		if err := s.hydrate(ctx, engagement); err != nil {
			return nil, err
		}
		return engagement, nil
	}

	engagement.Audiences = kept
	return s.saveAudiences(ctx, engagement, actor)
}

// SetAudienceSchedule sets or clears the schedule on an audience
// reference. A nil schedule clears it. When the audience is not
// attached, or already carries the requested schedule, nothing is
// written and the engagement is returned unchanged, keeping both set
// and unset idempotent.
func (s *Service) SetAudienceSchedule(ctx context.Context, engagementID, audienceID string, schedule *domain.Schedule, actor string) (*domain.Engagement, error) {
	if schedule != nil {
		cronExpr, err := schedule.Cron()
		if err != nil {
			return nil, err
		}
		schedule.CronExpression = cronExpr
	}

	engagement, err := s.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	changed := false
	for i := range engagement.Audiences {
		if engagement.Audiences[i].ID == audienceID &&
			!domain.SchedulesEqual(engagement.Audiences[i].Schedule, schedule) {
			engagement.Audiences[i].Schedule = schedule
			changed = true
		}
	}
	if !changed {
		if err := s.hydrate(ctx, engagement); err != nil {
			return nil, err
		}
		return engagement, nil
	}

	return s.saveAudiences(ctx, engagement, actor)
}

// SetDestinationSchedule sets or clears the cron override on one
// destination reference. An empty expression clears the override so the
// audience-level schedule applies again. When the target reference is
// not found, or the override already has the requested value, nothing
// is written and the engagement is returned unchanged, keeping both set
// and unset idempotent.
func (s *Service) SetDestinationSchedule(ctx context.Context, engagementID, audienceID, destinationID, cronExpr, actor string) (*domain.Engagement, error) {
	if cronExpr != "" {
		if _, err := domain.NextRun(cronExpr, s.now()); err != nil {
			return nil, err
		}
	}

	engagement, err := s.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	changed := false
	for i := range engagement.Audiences {
		if engagement.Audiences[i].ID != audienceID {
			continue
		}
		for j := range engagement.Audiences[i].Destinations {
			if engagement.Audiences[i].Destinations[j].ID == destinationID &&
				engagement.Audiences[i].Destinations[j].CronSchedule != cronExpr {
				engagement.Audiences[i].Destinations[j].CronSchedule = cronExpr
				changed = true
			}
		}
	}
	if !changed {
		if err := s.hydrate(ctx, engagement); err != nil {
			return nil, err
		}
		return engagement, nil
	}

	return s.saveAudiences(ctx, engagement, actor)
}

// SetReplaceAudienceFlag flips whether deliveries to one destination
// reference replace the remote audience instead of appending
func (s *Service) SetReplaceAudienceFlag(ctx context.Context, engagementID, audienceID, destinationID string, replace bool, actor string) (*domain.Engagement, error) {
	engagement, err := s.load(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	audienceFound := false
	destinationFound := false
	for i := range engagement.Audiences {
		if engagement.Audiences[i].ID != audienceID {
			continue
		}
		audienceFound = true
		for j := range engagement.Audiences[i].Destinations {
			if engagement.Audiences[i].Destinations[j].ID == destinationID {
				engagement.Audiences[i].Destinations[j].ReplaceAudience = replace
				destinationFound = true
			}
		}
	}
	if !audienceFound {
		return nil, errors.Wrapf(ErrAudienceNotInEngagement,
			"audience %s in engagement %s", audienceID, engagementID)
	}
	if !destinationFound {
		return nil, errors.Wrapf(ErrDestinationNotInEngagement,
			"destination %s for audience %s in engagement %s", destinationID, audienceID, engagementID)
	}

	return s.saveAudiences(ctx, engagement, actor)
}

func (s *Service) load(ctx context.Context, id string) (*domain.Engagement, error) {
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

func (s *Service) saveAudiences(ctx context.Context, engagement *domain.Engagement, actor string) (*domain.Engagement, error) {
	doc, err := s.store.Update(ctx, repository.CollectionEngagements, engagement.ID, map[string]any{
		"audiences": engagement.Audiences,
	}, actor)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownEngagement, "%s not found", engagement.ID)
	}

	updated := &domain.Engagement{}
	if err := repository.DecodeDocument(doc, updated); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// validateRefs checks that every referenced audience and destination
// resolves to a non-deleted document
func (s *Service) validateRefs(ctx context.Context, refs []domain.AudienceRef) error {
	for _, ref := range refs {
		doc, err := s.store.Get(ctx, repository.CollectionAudiences, map[string]any{repository.FieldID: ref.ID}, false)
		if err != nil {
			return err
		}
		if doc == nil {
			return errors.Wrapf(ErrUnknownAudience, "%s not found", ref.ID)
		}

		for _, dest := range ref.Destinations {
			doc, err := s.store.Get(ctx, repository.CollectionDestinations, map[string]any{repository.FieldID: dest.ID}, false)
			if err != nil {
				return err
			}
			if doc == nil {
				return errors.Wrapf(ErrUnknownDestination, "%s not found", dest.ID)
			}
		}

		if ref.Schedule != nil {
			cronExpr, err := ref.Schedule.Cron()
			if err != nil {
				return err
			}
			ref.Schedule.CronExpression = cronExpr
		}
	}
	return nil
}

// hydrate fills the derived fields: destination statuses from their
// latest delivery jobs, next-run times from the effective schedules,
// audience statuses and the engagement's aggregate status
func (s *Service) hydrate(ctx context.Context, engagement *domain.Engagement) error {
	now := s.now()

	for i := range engagement.Audiences {
		audienceRef := &engagement.Audiences[i]
		for j := range audienceRef.Destinations {
			destRef := &audienceRef.Destinations[j]

			if destRef.LatestDeliveryJobID != "" {
				doc, err := s.store.Get(ctx, repository.CollectionDeliveryJobs,
					map[string]any{repository.FieldID: destRef.LatestDeliveryJobID}, false)
				if err != nil {
					return err
				}
				if doc == nil {
					// A dangling job pointer surfaces as an error state
					// rather than hiding the delivery
					destRef.Status = domain.StatusError
				} else {
					job := &domain.DeliveryJob{}
					if err := repository.DecodeDocument(doc, job); err != nil {
						return err
					}
					destRef.Status = domain.MapJobStatus(job.Status)
				}
			}

			if cronExpr := domain.EffectiveCron(audienceRef, destRef); cronExpr != "" {
				if next, err := domain.NextRun(cronExpr, now); err == nil {
					destRef.NextRun = &next
				}
			}
		}
		audienceRef.Status = domain.AudienceStatusIn(audienceRef)
	}

	engagement.Status = domain.ComputeEngagementStatus(engagement, now)
	return nil
}
