package scheduler

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform"
	platformmocks "github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform/mocks"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository/mocks"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
	"go.uber.org/mock/gomock"
)

func destinationDoc(id string, status domain.ConnectionStatus) repository.Document {
	return repository.Document{
		"id":            id,
		"name":          "Facebook",
		"platform_type": "facebook",
		"status":        string(status),
		"enabled":       true,
	}
}

func newHealthService(t *testing.T) (*DestinationHealthService, *mocks.MockDocumentStore, *platformmocks.MockConnector) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := mocks.NewMockDocumentStore(ctrl)
	connector := platformmocks.NewMockConnector(ctrl)

	registry := adplatform.NewRegistry(connector)
	registry.Register(domain.PlatformFacebook, connector)

	service := &DestinationHealthService{
		store:      store,
		connectors: registry,
		notifier:   notifying.NewService(store),
	}
	return service, store, connector
}

func TestCheckAllDestinations(t *testing.T) {
	t.Run("a lost connection is persisted and raises a critical notification", func(t *testing.T) {
		service, store, connector := newHealthService(t)

		store.EXPECT().
			GetMany(gomock.Any(), repository.CollectionDestinations, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, opts repository.QueryOptions) (*repository.Page, error) {
				assert.Equal(t, map[string]any{"enabled": true}, opts.Filter)
				return &repository.Page{
					Total:     1,
					Documents: []repository.Document{destinationDoc("D1", domain.ConnectionActive)},
				}, nil
			})
		connector.EXPECT().
			CheckConnection(gomock.Any(), gomock.Any()).
			Return(domain.ConnectionStatus(""), errors.New("connection refused"))
		store.EXPECT().
			Update(gomock.Any(), repository.CollectionDestinations, "D1",
				map[string]any{"status": domain.ConnectionFailed}, "scheduler").
			Return(destinationDoc("D1", domain.ConnectionFailed), nil)
		store.EXPECT().
			Create(gomock.Any(), repository.CollectionNotifications, gomock.Any(), "scheduler").
			DoAndReturn(func(_ context.Context, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, domain.NotificationCritical, fields["type"])
				assert.Equal(t, domain.CategoryDestinations, fields["category"])
				return repository.Document{"id": "N1"}, nil
			})

		service.checkAllDestinations(context.Background())
	})

	t.Run("an unchanged status writes nothing", func(t *testing.T) {
		service, store, connector := newHealthService(t)

		store.EXPECT().
			GetMany(gomock.Any(), repository.CollectionDestinations, gomock.Any()).
			Return(&repository.Page{
				Total:     1,
				Documents: []repository.Document{destinationDoc("D1", domain.ConnectionActive)},
			}, nil)
		connector.EXPECT().
			CheckConnection(gomock.Any(), gomock.Any()).
			Return(domain.ConnectionActive, nil)
		// No Update or notification expectations

		service.checkAllDestinations(context.Background())
	})

	t.Run("a recovery is persisted without a notification", func(t *testing.T) {
		service, store, connector := newHealthService(t)

		store.EXPECT().
			GetMany(gomock.Any(), repository.CollectionDestinations, gomock.Any()).
			Return(&repository.Page{
				Total:     1,
				Documents: []repository.Document{destinationDoc("D1", domain.ConnectionFailed)},
			}, nil)
		connector.EXPECT().
			CheckConnection(gomock.Any(), gomock.Any()).
			Return(domain.ConnectionActive, nil)
		store.EXPECT().
			Update(gomock.Any(), repository.CollectionDestinations, "D1",
				map[string]any{"status": domain.ConnectionActive}, "scheduler").
			Return(destinationDoc("D1", domain.ConnectionActive), nil)

		service.checkAllDestinations(context.Background())
	})
}
