package notifying

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository/mocks"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"go.uber.org/mock/gomock"
)

func TestNotify(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockDocumentStore(ctrl)
	mockStore.EXPECT().
		Create(gomock.Any(), repository.CollectionNotifications, gomock.Any(), "tester").
		DoAndReturn(func(_ context.Context, _ string, fields map[string]any, _ string) (repository.Document, error) {
			assert.Equal(t, domain.NotificationCritical, fields["type"])
			assert.Equal(t, domain.CategoryDelivery, fields["category"])
			assert.Equal(t, "delivery failed", fields["description"])
			assert.Equal(t, "tester", fields["username"])

			// Critical notifications are retained six months
			expire, ok := fields["expire_time"].(time.Time)
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().UTC().Add(6*30*24*time.Hour), expire, time.Minute)

			return repository.Document{
				"id":          "N1",
				"type":        "critical",
				"category":    "delivery",
				"description": "delivery failed",
				"username":    "tester",
			}, nil
		})

	service := NewService(mockStore)

	notification, err := service.Notify(context.Background(),
		domain.NotificationCritical, domain.CategoryDelivery, "delivery failed", "tester")
	require.NoError(t, err)
	assert.Equal(t, "N1", notification.ID)
	assert.Equal(t, domain.NotificationCritical, notification.Type)
}

func TestList(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockDocumentStore(ctrl)
	mockStore.EXPECT().
		GetMany(gomock.Any(), repository.CollectionNotifications, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, opts repository.QueryOptions) (*repository.Page, error) {
			// Expiry is filtered in the query so the total matches what
			// clients can actually page through
			assert.True(t, opts.ExcludeExpired)
			assert.True(t, opts.SortDescending)
			assert.Equal(t, repository.FieldCreateTime, opts.SortBy)

			return &repository.Page{
				Total: 7,
				Documents: []repository.Document{
					{"id": "N1", "type": "success", "description": "delivered"},
					{"id": "N2", "type": "informational", "description": "catalog updated"},
				},
			}, nil
		})

	service := NewService(mockStore)

	notifications, total, err := service.List(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	require.Len(t, notifications, 2)
	assert.Equal(t, "N1", notifications[0].ID)
}
