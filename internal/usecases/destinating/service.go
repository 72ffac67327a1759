package destinating

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

var ErrUnknownDestination = errors.New("unknown destination")

// DestinationService manages the fixed catalog of delivery platforms.
// Destinations are seeded from the catalog once; afterwards only their
// status, enabled and added flags change.
type DestinationService interface {
	EnsureCatalog(ctx context.Context, actor string) error
	Get(ctx context.Context, id string) (*domain.Destination, error)
	List(ctx context.Context, category domain.DestinationCategory, addedOnly bool) ([]*domain.Destination, error)
	Update(ctx context.Context, req *domain.UpdateDestinationRequest, actor string) (*domain.Destination, error)
}

type Service struct {
	store repository.DocumentStore
}

func NewService(store repository.DocumentStore) DestinationService {
	return &Service{store: store}
}

// EnsureCatalog creates any catalog destination that does not exist
// yet. Safe to run on every startup: existing platforms are left alone.
func (s *Service) EnsureCatalog(ctx context.Context, actor string) error {
	for _, entry := range domain.DestinationCatalog {
		existing, err := s.store.Get(ctx, repository.CollectionDestinations,
			map[string]any{"platform_type": entry.PlatformType}, false)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		_, err = s.store.Create(ctx, repository.CollectionDestinations, map[string]any{
			"name":           entry.Name,
			"platform_type":  entry.PlatformType,
			"category":       entry.Category,
			"status":         domain.ConnectionPending,
			"enabled":        false,
			"added":          false,
			"is_ad_platform": entry.IsAdPlatform,
		}, actor)
		if err != nil {
			// A concurrent seeder may have won the race
			if errors.Is(err, repository.ErrDuplicateDocument) {
				continue
			}
			return err
		}

		logrus.WithFields(logrus.Fields{
			"platform": entry.PlatformType,
			"name":     entry.Name,
		}).Info("destination seeded from catalog")
	}
	return nil
}

// Get loads one destination by id
func (s *Service) Get(ctx context.Context, id string) (*domain.Destination, error) {
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

// List returns the catalog, optionally narrowed to one category or to
// platforms the customer has added
func (s *Service) List(ctx context.Context, category domain.DestinationCategory, addedOnly bool) ([]*domain.Destination, error) {
	filter := map[string]any{}
	if category != "" {
		filter["category"] = category
	}
	if addedOnly {
		filter["added"] = true
	}

	page, err := s.store.GetMany(ctx, repository.CollectionDestinations, repository.QueryOptions{
		Filter:   filter,
		SortBy:   "name",
		PageSize: len(domain.DestinationCatalog),
	})
	if err != nil {
		return nil, err
	}

	destinations := make([]*domain.Destination, 0, len(page.Documents))
	for _, doc := range page.Documents {
		dest := &domain.Destination{}
		if err := repository.DecodeDocument(doc, dest); err != nil {
			return nil, err
		}
		destinations = append(destinations, dest)
	}
	return destinations, nil
}

// Update changes a destination's mutable flags
func (s *Service) Update(ctx context.Context, req *domain.UpdateDestinationRequest, actor string) (*domain.Destination, error) {
	fields := map[string]any{}
	if req.Enabled != nil {
		fields["enabled"] = *req.Enabled
	}
	if req.Added != nil {
		fields["added"] = *req.Added
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if len(fields) == 0 {
		return s.Get(ctx, req.ID)
	}

	doc, err := s.store.Update(ctx, repository.CollectionDestinations, req.ID, fields, actor)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrUnknownDestination, "%s not found", req.ID)
	}

	dest := &domain.Destination{}
	if err := repository.DecodeDocument(doc, dest); err != nil {
		return nil, err
	}
	return dest, nil
}
