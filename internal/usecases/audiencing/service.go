package audiencing

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

// AudienceService manages audience segments and their lookalike
// eligibility
type AudienceService interface {
	Create(ctx context.Context, req *domain.CreateAudienceRequest, actor string) (*domain.Audience, error)
	Get(ctx context.Context, id string) (*domain.Audience, error)
	List(ctx context.Context, pageSize, pageNumber int) ([]*domain.Audience, int64, error)
	Update(ctx context.Context, req *domain.UpdateAudienceRequest, actor string) (*domain.Audience, error)
	Delete(ctx context.Context, id, actor string, hard bool) error
	LookalikeableStatus(ctx context.Context, audienceID string) (domain.LookalikeStatus, error)
}

// scanPageSize bounds the eligibility scan's reads; an audience is
// never referenced by anywhere near this many engagements or deliveries
const scanPageSize = 500

type Service struct {
	store repository.DocumentStore
	// now is swappable in tests
	now func() time.Time
}

func NewService(store repository.DocumentStore) AudienceService {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new audience. Lookalike audiences must reference an
// existing, non-deleted source audience that is currently eligible to
// source a lookalike.
func (s *Service) Create(ctx context.Context, req *domain.CreateAudienceRequest, actor string) (*domain.Audience, error) {
	fields := map[string]any{
		"name":    req.Name,
		"filters": req.Filters,
	}

	if req.Lookalike != nil {
		if req.Lookalike.SourceAudienceID == "" {
			return nil, errors.Wrap(ErrInvalidLookalike, "source audience id is required")
		}
		if req.Lookalike.TargetSizePercent <= 0 || req.Lookalike.TargetSizePercent > 100 {
			return nil, errors.Wrap(ErrInvalidLookalike, "target size percent must be in (0, 100]")
		}

		source, err := s.Get(ctx, req.Lookalike.SourceAudienceID)
		if err != nil {
			if errors.Is(err, ErrUnknownAudience) {
				return nil, errors.Wrapf(ErrUnknownSourceAudience, "%s not found", req.Lookalike.SourceAudienceID)
			}
			return nil, err
		}
		if source.LookalikeStatus != domain.LookalikeActive {
			return nil, errors.Wrapf(ErrSourceNotLookalikeable,
				"audience %s is %s", source.ID, source.LookalikeStatus)
		}

		req.Lookalike.SourceAudienceName = source.Name
		req.Lookalike.SourceSize = source.Size
		fields["is_lookalike"] = true
		fields["lookalike"] = req.Lookalike
	}

	doc, err := s.store.Create(ctx, repository.CollectionAudiences, fields, actor)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateDocument) {
			return nil, errors.Wrapf(ErrDuplicateAudienceName, "%q", req.Name)
		}
		return nil, err
	}

	audience := &domain.Audience{}
	if err := repository.DecodeDocument(doc, audience); err != nil {
		return nil, err
	}
	audience.LookalikeStatus = domain.LookalikeDisabled

	logrus.WithFields(logrus.Fields{
		"audience_id":  audience.ID,
		"name":         audience.Name,
		"is_lookalike": audience.IsLookalike,
	}).Info("audience created")

	return audience, nil
}

// Get loads one audience and evaluates its lookalike eligibility
func (s *Service) Get(ctx context.Context, id string) (*domain.Audience, error) {
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

	status, err := s.LookalikeableStatus(ctx, audience.ID)
	if err != nil {
		return nil, err
	}
	audience.LookalikeStatus = status

	return audience, nil
}

// List returns audiences newest first with their lookalike eligibility
func (s *Service) List(ctx context.Context, pageSize, pageNumber int) ([]*domain.Audience, int64, error) {
	page, err := s.store.GetMany(ctx, repository.CollectionAudiences, repository.QueryOptions{
		SortBy:         repository.FieldCreateTime,
		SortDescending: true,
		PageSize:       pageSize,
		PageNumber:     pageNumber,
	})
	if err != nil {
		return nil, 0, err
	}

	audiences := make([]*domain.Audience, 0, len(page.Documents))
	for _, doc := range page.Documents {
		audience := &domain.Audience{}
		if err := repository.DecodeDocument(doc, audience); err != nil {
			return nil, 0, err
		}
		status, err := s.LookalikeableStatus(ctx, audience.ID)
		if err != nil {
			return nil, 0, err
		}
		audience.LookalikeStatus = status
		audiences = append(audiences, audience)
	}

	return audiences, page.Total, nil
}

// Update changes an audience's name or filters. Renames keep the
// active-name uniqueness the store enforces on create.
func (s *Service) Update(ctx context.Context, req *domain.UpdateAudienceRequest, actor string) (*domain.Audience, error) {
	fields := map[string]any{}
	if req.Name != nil {
		existing, err := s.store.Get(ctx, repository.CollectionAudiences, map[string]any{"name": *req.Name}, false)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID() != req.ID {
			return nil, errors.Wrapf(ErrDuplicateAudienceName, "%q", *req.Name)
		}
		fields["name"] = *req.Name
	}
	if req.Filters != nil {
		fields["filters"] = *req.Filters
	}
	if len(fields) == 0 {
		return s.Get(ctx, req.ID)
	}

	doc, err := s.store.Update(ctx, repository.CollectionAudiences, req.ID, fields, actor)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownAudience, "%s not found", req.ID)
	}

	audience := &domain.Audience{}
	if err := repository.DecodeDocument(doc, audience); err != nil {
		return nil, err
	}

	status, err := s.LookalikeableStatus(ctx, audience.ID)
	if err != nil {
		return nil, err
	}
	audience.LookalikeStatus = status

	return audience, nil
}

// Delete removes an audience, softly unless hard is set
func (s *Service) Delete(ctx context.Context, id, actor string, hard bool) error {
	deleted, err := s.store.Delete(ctx, repository.CollectionAudiences, map[string]any{repository.FieldID: id}, actor, hard)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.Wrapf(ErrUnknownAudience, "%s not found", id)
	}
	return nil
}

// deliveryRef is one audience/destination delivery pairing collected
// from either side of the graph
type deliveryRef struct {
	destinationID string
	jobID         string
}

// LookalikeableStatus evaluates whether the audience can source a
// lookalike. It walks every delivery of the audience, engagement-embedded
// and standalone, keeps only the ones aimed at ad platforms and looks
// for a Succeeded job that finished at least LookalikeCooldown ago.
//
//	no deliveries at all, or none to an ad platform -> Disabled
//	ad-platform deliveries, none old enough         -> Inactive
//	at least one qualifying delivery                -> Active
//
// The scan short-circuits on the first qualifying delivery.
func (s *Service) LookalikeableStatus(ctx context.Context, audienceID string) (domain.LookalikeStatus, error) {
	refs, err := s.collectDeliveryRefs(ctx, audienceID)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return domain.LookalikeDisabled, nil
	}

	now := s.now()
	adPlatform := map[string]bool{}
	sawAdPlatformDelivery := false

	for _, ref := range refs {
		isAd, ok := adPlatform[ref.destinationID]
		if !ok {
			dest, err := s.destinationFor(ctx, ref.destinationID)
			if err != nil {
				return "", err
			}
			isAd = dest != nil && dest.IsAdPlatform
			adPlatform[ref.destinationID] = isAd
		}
		if !isAd {
			continue
		}
		sawAdPlatformDelivery = true

		if ref.jobID == "" {
			continue
		}
		job, err := s.jobFor(ctx, ref.jobID)
		if err != nil {
			return "", err
		}
		if job == nil || job.Status != domain.JobSucceeded {
			continue
		}

		finishedAt := job.UpdateTime
		if job.EndTime != nil {
			finishedAt = *job.EndTime
		}
		if now.Sub(finishedAt) >= domain.LookalikeCooldown {
			return domain.LookalikeActive, nil
		}
	}

	if sawAdPlatformDelivery {
		return domain.LookalikeInactive, nil
	}
	return domain.LookalikeDisabled, nil
}

// collectDeliveryRefs gathers the audience's deliveries from both the
// engagements that embed it and the standalone delivery records
func (s *Service) collectDeliveryRefs(ctx context.Context, audienceID string) ([]deliveryRef, error) {
	var refs []deliveryRef

	engagements, err := s.store.GetMany(ctx, repository.CollectionEngagements, repository.QueryOptions{
		Filter: map[string]any{
			"audiences": []map[string]any{{"id": audienceID}},
		},
		PageSize: scanPageSize,
	})
	if err != nil {
		return nil, err
	}
	for _, doc := range engagements.Documents {
		engagement := &domain.Engagement{}
		if err := repository.DecodeDocument(doc, engagement); err != nil {
			return nil, err
		}
		for i := range engagement.Audiences {
			if engagement.Audiences[i].ID != audienceID {
				continue
			}
			for _, dest := range engagement.Audiences[i].Destinations {
				if dest.LatestDeliveryJobID == "" {
					continue
				}
				refs = append(refs, deliveryRef{destinationID: dest.ID, jobID: dest.LatestDeliveryJobID})
			}
		}
	}

	standalone, err := s.store.GetMany(ctx, repository.CollectionDeliveries, repository.QueryOptions{
		Filter:   map[string]any{"audience_id": audienceID},
		PageSize: scanPageSize,
	})
	if err != nil {
		return nil, err
	}
	for _, doc := range standalone.Documents {
		delivery := &domain.Delivery{}
		if err := repository.DecodeDocument(doc, delivery); err != nil {
			return nil, err
		}
		refs = append(refs, deliveryRef{destinationID: delivery.DestinationID, jobID: delivery.DeliveryJobID})
	}

	return refs, nil
}

func (s *Service) destinationFor(ctx context.Context, id string) (*domain.Destination, error) {
	doc, err := s.store.Get(ctx, repository.CollectionDestinations, map[string]any{repository.FieldID: id}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	dest := &domain.Destination{}
	if err := repository.DecodeDocument(doc, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (s *Service) jobFor(ctx context.Context, id string) (*domain.DeliveryJob, error) {
	doc, err := s.store.Get(ctx, repository.CollectionDeliveryJobs, map[string]any{repository.FieldID: id}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	job := &domain.DeliveryJob{}
	if err := repository.DecodeDocument(doc, job); err != nil {
		return nil, err
	}
	return job, nil
}
