package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/config"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/delivering"
)

// engagementScanPageSize bounds how many engagements one sync pass
// reads per page
const engagementScanPageSize = 200

// defaultLookback is how far back the first pass after startup looks
// for missed fire times. Later passes pick up exactly where the
// previous one ended.
const defaultLookback = 15 * time.Minute

// DeliverySyncConfig configures the recurring-delivery scheduler
type DeliverySyncConfig struct {
	CronSchedule        string
	RequestDelaySeconds int
	MaxConcurrentJobs   int
	SyncEnabled         bool
}

// dueDelivery is one audience/destination pairing whose schedule fired
// inside the scan window
type dueDelivery struct {
	engagementID  string
	audienceID    string
	destinationID string
}

// DeliverySyncService walks the engagement graph on a fixed cadence and
// fires the deliveries whose effective schedule came due since the last
// pass
type DeliverySyncService struct {
	scheduler *gocron.Scheduler
	config    DeliverySyncConfig
	store     repository.DocumentStore
	tracker   delivering.DeliveryTracker

	syncRunning         bool
	syncMutex           sync.Mutex
	lastSyncStartedAt   time.Time
	lastSyncCompletedAt time.Time
	lastWindowEnd       time.Time
}

func NewDeliverySyncService(
	store repository.DocumentStore,
	tracker delivering.DeliveryTracker,
	appConfig *config.Config,
) *DeliverySyncService {
	syncConfig := DeliverySyncConfig{
		CronSchedule:        appConfig.DeliverySync.CronSchedule,
		RequestDelaySeconds: appConfig.DeliverySync.RequestDelaySeconds,
		MaxConcurrentJobs:   appConfig.DeliverySync.MaxConcurrentJobs,
		SyncEnabled:         appConfig.DeliverySync.Enabled,
	}

	logrus.WithFields(logrus.Fields{
		"cron_schedule":         syncConfig.CronSchedule,
		"request_delay_seconds": syncConfig.RequestDelaySeconds,
		"max_concurrent_jobs":   syncConfig.MaxConcurrentJobs,
		"sync_enabled":          syncConfig.SyncEnabled,
	}).Info("delivery sync scheduler configuration loaded")

	return &DeliverySyncService{
		scheduler: gocron.NewScheduler(time.UTC),
		config:    syncConfig,
		store:     store,
		tracker:   tracker,
	}
}

// Start schedules the sync and runs it until the context is cancelled
func (s *DeliverySyncService) Start(ctx context.Context) error {
	if !s.config.SyncEnabled {
		logrus.Info("delivery sync disabled by configuration")
		return nil
	}

	logrus.WithField("cron", s.config.CronSchedule).Info("starting delivery sync scheduler")

	_, err := s.scheduler.Cron(s.config.CronSchedule).Do(func() {
		s.syncDueDeliveries(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduling delivery sync: %w", err)
	}

	s.scheduler.StartAsync()

	go func() {
		<-ctx.Done()
		logrus.Info("stopping delivery sync scheduler")
		s.scheduler.Stop()
	}()

	return nil
}

// syncDueDeliveries runs one sync pass. Overlapping passes are skipped
// rather than queued.
func (s *DeliverySyncService) syncDueDeliveries(ctx context.Context) {
	s.syncMutex.Lock()
	if s.syncRunning {
		s.syncMutex.Unlock()
		logrus.Info("delivery sync already in progress, skipping")
		return
	}
	s.syncRunning = true
	s.syncMutex.Unlock()

	startTime := time.Now().UTC()
	s.lastSyncStartedAt = startTime

	defer func() {
		s.syncMutex.Lock()
		s.syncRunning = false
		s.syncMutex.Unlock()
	}()

	windowStart := s.lastWindowEnd
	if windowStart.IsZero() {
		windowStart = startTime.Add(-defaultLookback)
	}

	due, err := s.collectDueDeliveries(ctx, windowStart, startTime)
	if err != nil {
		logrus.WithError(err).Error("could not scan engagements for due deliveries")
		return
	}

	if len(due) > 0 {
		s.fireDeliveries(ctx, due)
	}

	s.lastWindowEnd = startTime
	s.lastSyncCompletedAt = time.Now().UTC()

	logrus.WithFields(logrus.Fields{
		"duration":   time.Since(startTime).String(),
		"deliveries": len(due),
	}).Info("delivery sync pass completed")
}

// collectDueDeliveries walks every engagement and returns the
// audience/destination pairings whose effective cron fired inside
// (windowStart, windowEnd]. Inactive engagements and engagements whose
// schedule window excludes the pass never fire.
func (s *DeliverySyncService) collectDueDeliveries(ctx context.Context, windowStart, windowEnd time.Time) ([]dueDelivery, error) {
	var due []dueDelivery

	for pageNumber := 1; ; pageNumber++ {
		page, err := s.store.GetMany(ctx, repository.CollectionEngagements, repository.QueryOptions{
			SortBy:     repository.FieldCreateTime,
			PageSize:   engagementScanPageSize,
			PageNumber: pageNumber,
		})
		if err != nil {
			return nil, err
		}

		for _, doc := range page.Documents {
			engagement := &domain.Engagement{}
			if err := repository.DecodeDocument(doc, engagement); err != nil {
				logrus.WithFields(logrus.Fields{
					"engagement_id": doc.ID(),
					"error":         err.Error(),
				}).Warn("skipping undecodable engagement")
				continue
			}

			if engagement.ManualStatus == domain.EngagementInactive {
				continue
			}
			if engagement.Schedule != nil && !engagement.Schedule.WindowContains(windowEnd) {
				continue
			}

			for i := range engagement.Audiences {
				audienceRef := &engagement.Audiences[i]
				for j := range audienceRef.Destinations {
					destRef := &audienceRef.Destinations[j]

					cronExpr := domain.EffectiveCron(audienceRef, destRef)
					if cronExpr == "" {
						continue
					}

					next, err := domain.NextRun(cronExpr, windowStart)
					if err != nil {
						logrus.WithFields(logrus.Fields{
							"engagement_id": engagement.ID,
							"cron":          cronExpr,
						}).Warn("skipping destination with unparsable schedule")
						continue
					}
					if next.After(windowEnd) {
						continue
					}

					due = append(due, dueDelivery{
						engagementID:  engagement.ID,
						audienceID:    audienceRef.ID,
						destinationID: destRef.ID,
					})
				}
			}
		}

		if int64(pageNumber*engagementScanPageSize) >= page.Total {
			return due, nil
		}
	}
}

// fireDeliveries records and dispatches the due deliveries with bounded
// concurrency
func (s *DeliverySyncService) fireDeliveries(ctx context.Context, due []dueDelivery) {
	semaphore := make(chan struct{}, s.config.MaxConcurrentJobs)
	var wg sync.WaitGroup

	for _, delivery := range due {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(d dueDelivery) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			s.fireDelivery(ctx, d)

			// Spacing between platform requests
			time.Sleep(time.Duration(s.config.RequestDelaySeconds) * time.Second)
		}(delivery)
	}

	wg.Wait()
}

func (s *DeliverySyncService) fireDelivery(ctx context.Context, d dueDelivery) {
	logrus.WithFields(logrus.Fields{
		"engagement_id":  d.engagementID,
		"audience_id":    d.audienceID,
		"destination_id": d.destinationID,
	}).Info("firing scheduled delivery")

	job, err := s.tracker.RecordDelivery(ctx, &domain.RecordDeliveryRequest{
		AudienceID:    d.audienceID,
		DestinationID: d.destinationID,
		EngagementID:  d.engagementID,
	}, "scheduler")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"engagement_id":  d.engagementID,
			"audience_id":    d.audienceID,
			"destination_id": d.destinationID,
			"error":          err.Error(),
		}).Error("could not record scheduled delivery")
		return
	}

	if _, err := s.tracker.Dispatch(ctx, job.ID, "scheduler"); err != nil {
		logrus.WithFields(logrus.Fields{
			"job_id": job.ID,
			"error":  err.Error(),
		}).Error("could not dispatch scheduled delivery")
	}
}

// TriggerManualSync starts a sync pass outside the cron cadence
func (s *DeliverySyncService) TriggerManualSync() {
	s.syncMutex.Lock()
	if s.syncRunning {
		s.syncMutex.Unlock()
		logrus.Info("delivery sync already in progress, ignoring manual trigger")
		return
	}
	s.syncMutex.Unlock()

	logrus.Info("starting manual delivery sync")
	go s.syncDueDeliveries(context.Background())
}

// GetStatus reports the scheduler's current state
func (s *DeliverySyncService) GetStatus() map[string]any {
	return map[string]any{
		"sync_enabled":           s.config.SyncEnabled,
		"sync_cron":              s.config.CronSchedule,
		"sync_max_concurrent":    s.config.MaxConcurrentJobs,
		"sync_request_delay_s":   s.config.RequestDelaySeconds,
		"last_sync_started_at":   s.lastSyncStartedAt,
		"last_sync_completed_at": s.lastSyncCompletedAt,
	}
}
