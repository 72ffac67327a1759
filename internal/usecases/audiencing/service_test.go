package audiencing

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

const rfc3339 = time.RFC3339Nano

func newTestService(store repository.DocumentStore, now time.Time) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return now },
	}
}

// engagementDoc builds an engagement embedding one audience delivered
// to one destination
func engagementDoc(audienceID, destinationID, jobID string) repository.Document {
	return repository.Document{
		"id":   "E1",
		"name": "Summer push",
		"audiences": []map[string]any{
			{
				"id": audienceID,
				"destinations": []map[string]any{
					{"id": destinationID, "delivery_job_id": jobID},
				},
			},
		},
	}
}

func destinationDoc(id string, isAdPlatform bool) repository.Document {
	return repository.Document{
		"id":             id,
		"name":           "Facebook",
		"platform_type":  "facebook",
		"is_ad_platform": isAdPlatform,
	}
}

func jobDoc(id string, status domain.DeliveryJobStatus, finishedAt time.Time) repository.Document {
	return repository.Document{
		"id":          id,
		"audience_id": "A1",
		"status":      string(status),
		"end_time":    finishedAt.Format(rfc3339),
		"update_time": finishedAt.Format(rfc3339),
	}
}

func TestLookalikeableStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		setup    func(store *mocks.MockDocumentStore)
		expected domain.LookalikeStatus
	}{
		{
			name: "no deliveries at all is Disabled",
			setup: func(store *mocks.MockDocumentStore) {
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
					Return(&repository.Page{}, nil)
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
					Return(&repository.Page{}, nil)
			},
			expected: domain.LookalikeDisabled,
		},
		{
			name: "deliveries only to non-ad platforms is Disabled",
			setup: func(store *mocks.MockDocumentStore) {
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
					Return(&repository.Page{Total: 1, Documents: []repository.Document{
						engagementDoc("A1", "D1", "J1"),
					}}, nil)
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
					Return(&repository.Page{}, nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
					Return(destinationDoc("D1", false), nil)
			},
			expected: domain.LookalikeDisabled,
		},
		{
			name: "succeeded delivery still inside the cool-down is Inactive",
			setup: func(store *mocks.MockDocumentStore) {
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
					Return(&repository.Page{Total: 1, Documents: []repository.Document{
						engagementDoc("A1", "D1", "J1"),
					}}, nil)
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
					Return(&repository.Page{}, nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
					Return(destinationDoc("D1", true), nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
					Return(jobDoc("J1", domain.JobSucceeded, now.Add(-29*time.Minute)), nil)
			},
			expected: domain.LookalikeInactive,
		},
		{
			name: "succeeded delivery older than the cool-down is Active",
			setup: func(store *mocks.MockDocumentStore) {
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
					Return(&repository.Page{Total: 1, Documents: []repository.Document{
						engagementDoc("A1", "D1", "J1"),
					}}, nil)
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
					Return(&repository.Page{}, nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
					Return(destinationDoc("D1", true), nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
					Return(jobDoc("J1", domain.JobSucceeded, now.Add(-31*time.Minute)), nil)
			},
			expected: domain.LookalikeActive,
		},
		{
			name: "a delivery finishing exactly at the cool-down boundary is Active",
			setup: func(store *mocks.MockDocumentStore) {
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
					Return(&repository.Page{Total: 1, Documents: []repository.Document{
						engagementDoc("A1", "D1", "J1"),
					}}, nil)
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
					Return(&repository.Page{}, nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
					Return(destinationDoc("D1", true), nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
					Return(jobDoc("J1", domain.JobSucceeded, now.Add(-domain.LookalikeCooldown)), nil)
			},
			expected: domain.LookalikeActive,
		},
		{
			name: "failed ad-platform delivery is Inactive",
			setup: func(store *mocks.MockDocumentStore) {
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
					Return(&repository.Page{Total: 1, Documents: []repository.Document{
						engagementDoc("A1", "D1", "J1"),
					}}, nil)
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
					Return(&repository.Page{}, nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
					Return(destinationDoc("D1", true), nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
					Return(jobDoc("J1", domain.JobFailed, now.Add(-2*time.Hour)), nil)
			},
			expected: domain.LookalikeInactive,
		},
		{
			name: "standalone deliveries count too",
			setup: func(store *mocks.MockDocumentStore) {
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
					Return(&repository.Page{}, nil)
				store.EXPECT().
					GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
					Return(&repository.Page{Total: 1, Documents: []repository.Document{
						{"id": "DL1", "audience_id": "A1", "destination_id": "D1", "delivery_job_id": "J1"},
					}}, nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
					Return(destinationDoc("D1", true), nil)
				store.EXPECT().
					Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
					Return(jobDoc("J1", domain.JobSucceeded, now.Add(-time.Hour)), nil)
			},
			expected: domain.LookalikeActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockStore := mocks.NewMockDocumentStore(ctrl)
			tt.setup(mockStore)

			service := newTestService(mockStore, now)

			status, err := service.LookalikeableStatus(context.Background(), "A1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestLookalikeableStatus_ShortCircuits(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockDocumentStore(ctrl)

	// Two qualifying deliveries; only the first one's job may be read
	mockStore.EXPECT().
		GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
		Return(&repository.Page{Total: 1, Documents: []repository.Document{
			{
				"id": "E1",
				"audiences": []map[string]any{
					{
						"id": "A1",
						"destinations": []map[string]any{
							{"id": "D1", "delivery_job_id": "J1"},
							{"id": "D1", "delivery_job_id": "J2"},
						},
					},
				},
			},
		}}, nil)
	mockStore.EXPECT().
		GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
		Return(&repository.Page{}, nil)
	mockStore.EXPECT().
		Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
		Return(destinationDoc("D1", true), nil).
		Times(1) // cached after the first lookup
	mockStore.EXPECT().
		Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
		Return(jobDoc("J1", domain.JobSucceeded, now.Add(-time.Hour)), nil)
	// No expectation for J2: reading it would fail the test

	service := newTestService(mockStore, now)

	status, err := service.LookalikeableStatus(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, domain.LookalikeActive, status)
}

func TestCreate_Lookalike(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("rejects a source that is not eligible", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockStore := mocks.NewMockDocumentStore(ctrl)

		// Source exists but has never been delivered to an ad platform
		mockStore.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, false).
			Return(repository.Document{"id": "A1", "name": "Source", "size": int64(100)}, nil)
		mockStore.EXPECT().
			GetMany(gomock.Any(), repository.CollectionEngagements, gomock.Any()).
			Return(&repository.Page{}, nil)
		mockStore.EXPECT().
			GetMany(gomock.Any(), repository.CollectionDeliveries, gomock.Any()).
			Return(&repository.Page{}, nil)

		service := newTestService(mockStore, now)

		_, err := service.Create(context.Background(), &domain.CreateAudienceRequest{
			Name: "Lookalike of Source",
			Lookalike: &domain.LookalikeParams{
				SourceAudienceID:  "A1",
				TargetSizePercent: 5,
			},
		}, "tester")

		assert.ErrorIs(t, err, ErrSourceNotLookalikeable)
	})

	t.Run("rejects an unknown source", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockStore := mocks.NewMockDocumentStore(ctrl)
		mockStore.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "missing"}, false).
			Return(nil, nil)

		service := newTestService(mockStore, now)

		_, err := service.Create(context.Background(), &domain.CreateAudienceRequest{
			Name: "Lookalike",
			Lookalike: &domain.LookalikeParams{
				SourceAudienceID:  "missing",
				TargetSizePercent: 5,
			},
		}, "tester")

		assert.ErrorIs(t, err, ErrUnknownSourceAudience)
	})

	t.Run("rejects out-of-range target size", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := newTestService(mocks.NewMockDocumentStore(ctrl), now)

		_, err := service.Create(context.Background(), &domain.CreateAudienceRequest{
			Name: "Lookalike",
			Lookalike: &domain.LookalikeParams{
				SourceAudienceID:  "A1",
				TargetSizePercent: 150,
			},
		}, "tester")

		assert.ErrorIs(t, err, ErrInvalidLookalike)
	})
}

func TestCreate_DuplicateName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockDocumentStore(ctrl)
	mockStore.EXPECT().
		Create(gomock.Any(), repository.CollectionAudiences, gomock.Any(), "tester").
		Return(nil, repository.ErrDuplicateDocument)

	service := newTestService(mockStore, time.Now())

	_, err := service.Create(context.Background(), &domain.CreateAudienceRequest{Name: "Taken"}, "tester")
	assert.ErrorIs(t, err, ErrDuplicateAudienceName)
}

func TestDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStore := mocks.NewMockDocumentStore(ctrl)
	mockStore.EXPECT().
		Delete(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, "tester", false).
		Return(false, nil)

	service := newTestService(mockStore, time.Now())

	err := service.Delete(context.Background(), "A1", "tester", false)
	assert.ErrorIs(t, err, ErrUnknownAudience)
}
