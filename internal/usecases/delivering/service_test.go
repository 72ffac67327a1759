package delivering

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform"
	platformmocks "github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform/mocks"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	storemocks "github.com/vfg2006/audience-delivery-api/infrastructure/repository/mocks"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	store     *storemocks.MockDocumentStore
	connector *platformmocks.MockConnector
	service   DeliveryTracker
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := storemocks.NewMockDocumentStore(ctrl)
	connector := platformmocks.NewMockConnector(ctrl)

	registry := adplatform.NewRegistry(connector)
	registry.Register(domain.PlatformFacebook, connector)

	return &fixture{
		store:     store,
		connector: connector,
		service:   NewService(store, registry, notifying.NewService(store)),
	}
}

func audienceDoc() repository.Document {
	return repository.Document{
		"id":   "A1",
		"name": "High spenders",
		"size": float64(100),
	}
}

func destinationDoc() repository.Document {
	return repository.Document{
		"id":            "D1",
		"name":          "Facebook",
		"platform_type": "facebook",
		"enabled":       true,
	}
}

func jobDoc(status domain.DeliveryJobStatus) repository.Document {
	return repository.Document{
		"id":             "J1",
		"audience_id":    "A1",
		"destination_id": "D1",
		"status":         string(status),
		"size":           float64(100),
	}
}

func TestRecordDelivery(t *testing.T) {
	t.Run("rejects unknown audiences", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "Amissing"}, false).
			Return(nil, nil)

		_, err := f.service.RecordDelivery(context.Background(), &domain.RecordDeliveryRequest{
			AudienceID:    "Amissing",
			DestinationID: "D1",
		}, "tester")
		assert.ErrorIs(t, err, ErrUnknownAudience)
	})

	t.Run("rejects unknown destinations", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, false).
			Return(audienceDoc(), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "Dmissing"}, false).
			Return(nil, nil)

		_, err := f.service.RecordDelivery(context.Background(), &domain.RecordDeliveryRequest{
			AudienceID:    "A1",
			DestinationID: "Dmissing",
		}, "tester")
		assert.ErrorIs(t, err, ErrUnknownDestination)
	})

	t.Run("rejects unknown engagements before creating the job", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, false).
			Return(audienceDoc(), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
			Return(destinationDoc(), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionEngagements, map[string]any{"id": "Emissing"}, false).
			Return(nil, nil)
		// No Create expectation: a bad engagement must not leave a job behind

		_, err := f.service.RecordDelivery(context.Background(), &domain.RecordDeliveryRequest{
			AudienceID:    "A1",
			DestinationID: "D1",
			EngagementID:  "Emissing",
		}, "tester")
		assert.ErrorIs(t, err, ErrUnknownEngagement)
	})

	t.Run("engagement deliveries move the latest-job pointer", func(t *testing.T) {
		f := newFixture(t)

		engagement := repository.Document{
			"id": "E1",
			"audiences": []map[string]any{
				{
					"id": "A1",
					"destinations": []map[string]any{
						{"id": "D1", "delivery_job_id": "Jold"},
					},
				},
			},
		}

		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, false).
			Return(audienceDoc(), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
			Return(destinationDoc(), nil)
		// Validated once before the job write, loaded again for the pointer update
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionEngagements, map[string]any{"id": "E1"}, false).
			Return(engagement, nil).
			Times(2)

		f.store.EXPECT().
			Create(gomock.Any(), repository.CollectionDeliveryJobs, gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, "E1", fields["engagement_id"])
				assert.Equal(t, domain.JobPending, fields["status"])
				assert.Equal(t, int64(100), fields["size"]) // seeded from the audience
				return jobDoc(domain.JobPending), nil
			})
		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionEngagements, "E1", gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, _ string, fields map[string]any, _ string) (repository.Document, error) {
				audiences := fields["audiences"].([]domain.AudienceRef)
				require.Len(t, audiences, 1)
				assert.Equal(t, "J1", audiences[0].Destinations[0].LatestDeliveryJobID)
				return engagement, nil
			})

		job, err := f.service.RecordDelivery(context.Background(), &domain.RecordDeliveryRequest{
			AudienceID:    "A1",
			DestinationID: "D1",
			EngagementID:  "E1",
		}, "tester")
		require.NoError(t, err)
		assert.Equal(t, "J1", job.ID)
		assert.Equal(t, domain.JobPending, job.Status)
	})

	t.Run("standalone deliveries get their own record", func(t *testing.T) {
		f := newFixture(t)

		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, false).
			Return(audienceDoc(), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
			Return(destinationDoc(), nil)
		f.store.EXPECT().
			Create(gomock.Any(), repository.CollectionDeliveryJobs, gomock.Any(), "tester").
			Return(jobDoc(domain.JobPending), nil)
		f.store.EXPECT().
			Create(gomock.Any(), repository.CollectionDeliveries, map[string]any{
				"audience_id":     "A1",
				"destination_id":  "D1",
				"delivery_job_id": "J1",
			}, "tester").
			Return(repository.Document{"id": "DL1"}, nil)

		job, err := f.service.RecordDelivery(context.Background(), &domain.RecordDeliveryRequest{
			AudienceID:    "A1",
			DestinationID: "D1",
		}, "tester")
		require.NoError(t, err)
		assert.Equal(t, "J1", job.ID)
	})
}

func TestDispatch(t *testing.T) {
	t.Run("only Pending jobs can be dispatched", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobInProgress), nil)

		_, err := f.service.Dispatch(context.Background(), "J1", "tester")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("a successful push stays InProgress with the platform result", func(t *testing.T) {
		f := newFixture(t)

		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobPending), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, false).
			Return(audienceDoc(), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
			Return(destinationDoc(), nil)

		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionDeliveryJobs, "J1", gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, domain.JobInProgress, fields["status"])
				assert.Contains(t, fields, "start_time")
				return jobDoc(domain.JobInProgress), nil
			})

		f.connector.EXPECT().
			Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, dest *domain.Destination, req *adplatform.DeliveryRequest) (*adplatform.DeliveryResult, error) {
				assert.Equal(t, "D1", dest.ID)
				assert.Equal(t, int64(100), req.Size)
				assert.False(t, req.Replace) // standalone deliveries always append
				return &adplatform.DeliveryResult{
					Size:      950,
					MatchRate: 0.87,
					Campaigns: []domain.Campaign{{ID: "C1", Name: "Summer"}},
				}, nil
			})

		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionDeliveryJobs, "J1", gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, int64(950), fields["size"])
				assert.Equal(t, 0.87, fields["match_rate"])
				assert.Contains(t, fields, "campaigns")

				doc := jobDoc(domain.JobInProgress)
				doc["size"] = float64(950)
				doc["match_rate"] = 0.87
				return doc, nil
			})

		job, err := f.service.Dispatch(context.Background(), "J1", "tester")
		require.NoError(t, err)
		assert.Equal(t, domain.JobInProgress, job.Status)
		assert.Equal(t, int64(950), job.Size)
		assert.Equal(t, 0.87, job.MatchRate)
	})

	t.Run("a push failure finishes the job as Failed", func(t *testing.T) {
		f := newFixture(t)

		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobPending), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionAudiences, map[string]any{"id": "A1"}, false).
			Return(audienceDoc(), nil)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDestinations, map[string]any{"id": "D1"}, false).
			Return(destinationDoc(), nil)

		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionDeliveryJobs, "J1", gomock.Any(), "tester").
			Return(jobDoc(domain.JobInProgress), nil)

		f.connector.EXPECT().
			Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("token expired"))

		// The internal completion reloads the job, marks it Failed and
		// records a critical notification
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobInProgress), nil)
		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionDeliveryJobs, "J1", gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, domain.JobFailed, fields["status"])
				assert.Contains(t, fields, "end_time")
				return jobDoc(domain.JobFailed), nil
			})
		f.store.EXPECT().
			Create(gomock.Any(), repository.CollectionNotifications, gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, domain.NotificationCritical, fields["type"])
				assert.Contains(t, fields["description"], "token expired")
				return repository.Document{"id": "N1"}, nil
			})

		job, err := f.service.Dispatch(context.Background(), "J1", "tester")
		require.NoError(t, err)
		assert.Equal(t, domain.JobFailed, job.Status)
	})
}

func TestComplete(t *testing.T) {
	t.Run("only InProgress jobs can be completed", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobPending), nil)

		_, err := f.service.Complete(context.Background(), &domain.CompleteDeliveryRequest{
			JobID:     "J1",
			Succeeded: true,
		}, "tester")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("success stores the result and refreshes the audience size", func(t *testing.T) {
		f := newFixture(t)

		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobInProgress), nil)

		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionDeliveryJobs, "J1", gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, domain.JobSucceeded, fields["status"])
				assert.Equal(t, int64(900), fields["size"])
				assert.Equal(t, 0.9, fields["match_rate"])
				assert.Contains(t, fields, "end_time")

				doc := jobDoc(domain.JobSucceeded)
				doc["size"] = float64(900)
				doc["match_rate"] = 0.9
				return doc, nil
			})
		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionAudiences, "A1", map[string]any{"size": int64(900)}, "tester").
			Return(audienceDoc(), nil)
		f.store.EXPECT().
			Create(gomock.Any(), repository.CollectionNotifications, gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, domain.NotificationSuccess, fields["type"])
				assert.Equal(t, domain.CategoryDelivery, fields["category"])
				return repository.Document{"id": "N1"}, nil
			})

		job, err := f.service.Complete(context.Background(), &domain.CompleteDeliveryRequest{
			JobID:     "J1",
			Succeeded: true,
			Size:      900,
			MatchRate: 0.9,
		}, "tester")
		require.NoError(t, err)
		assert.Equal(t, domain.JobSucceeded, job.Status)
		assert.Equal(t, int64(900), job.Size)
	})

	t.Run("failure keeps the audience size untouched", func(t *testing.T) {
		f := newFixture(t)

		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobInProgress), nil)
		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionDeliveryJobs, "J1", gomock.Any(), "tester").
			DoAndReturn(func(_ context.Context, _ string, _ string, fields map[string]any, _ string) (repository.Document, error) {
				assert.Equal(t, domain.JobFailed, fields["status"])
				assert.NotContains(t, fields, "size")
				return jobDoc(domain.JobFailed), nil
			})
		// No audiences Update expectation: the size must not change
		f.store.EXPECT().
			Create(gomock.Any(), repository.CollectionNotifications, gomock.Any(), "tester").
			Return(repository.Document{"id": "N1"}, nil)

		job, err := f.service.Complete(context.Background(), &domain.CompleteDeliveryRequest{
			JobID:     "J1",
			Succeeded: false,
			Reason:    "platform rejected the upload",
		}, "tester")
		require.NoError(t, err)
		assert.Equal(t, domain.JobFailed, job.Status)
	})
}

func TestBackfillMetrics(t *testing.T) {
	metrics := &domain.PerformanceMetrics{
		Impressions: 10000,
		Clicks:      320,
		Conversions: 12,
		Spend:       154.20,
	}

	t.Run("rejected on jobs that are still running", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobInProgress), nil)

		_, err := f.service.BackfillMetrics(context.Background(), "J1", metrics, "tester")
		assert.ErrorIs(t, err, ErrJobNotTerminal)
	})

	t.Run("attaches metrics to a finished job", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().
			Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "J1"}, false).
			Return(jobDoc(domain.JobSucceeded), nil)
		f.store.EXPECT().
			Update(gomock.Any(), repository.CollectionDeliveryJobs, "J1", map[string]any{"metrics": metrics}, "tester").
			DoAndReturn(func(_ context.Context, _ string, _ string, _ map[string]any, _ string) (repository.Document, error) {
				doc := jobDoc(domain.JobSucceeded)
				doc["metrics"] = map[string]any{
					"impressions": float64(10000),
					"clicks":      float64(320),
					"conversions": float64(12),
					"spend":       154.20,
				}
				return doc, nil
			})

		job, err := f.service.BackfillMetrics(context.Background(), "J1", metrics, "tester")
		require.NoError(t, err)
		require.NotNil(t, job.Metrics)
		assert.Equal(t, int64(10000), job.Metrics.Impressions)
		assert.Equal(t, 154.20, job.Metrics.Spend)
	})
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().
		Get(gomock.Any(), repository.CollectionDeliveryJobs, map[string]any{"id": "missing"}, false).
		Return(nil, nil)

	_, err := f.service.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}
