package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/config"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
)

// DestinationHealthConfig configures the connection-health scheduler
type DestinationHealthConfig struct {
	CronSchedule string
	Enabled      bool
}

// DestinationHealthService probes every enabled destination's platform
// connection on a fixed cadence, persists status transitions and raises
// a critical notification when a connection goes down
type DestinationHealthService struct {
	scheduler  *gocron.Scheduler
	config     DestinationHealthConfig
	store      repository.DocumentStore
	connectors *adplatform.Registry
	notifier   notifying.Notifier

	checkRunning bool
	checkMutex   sync.Mutex
	lastCheckAt  time.Time
}

func NewDestinationHealthService(
	store repository.DocumentStore,
	connectors *adplatform.Registry,
	notifier notifying.Notifier,
	appConfig *config.Config,
) *DestinationHealthService {
	healthConfig := DestinationHealthConfig{
		CronSchedule: appConfig.DestinationHealth.CronSchedule,
		Enabled:      appConfig.DestinationHealth.Enabled,
	}

	logrus.WithFields(logrus.Fields{
		"cron_schedule": healthConfig.CronSchedule,
		"enabled":       healthConfig.Enabled,
	}).Info("destination health scheduler configuration loaded")

	return &DestinationHealthService{
		scheduler:  gocron.NewScheduler(time.UTC),
		config:     healthConfig,
		store:      store,
		connectors: connectors,
		notifier:   notifier,
	}
}

// Start schedules the health checks and runs them until the context is
// cancelled
func (s *DestinationHealthService) Start(ctx context.Context) error {
	if !s.config.Enabled {
		logrus.Info("destination health checks disabled by configuration")
		return nil
	}

	logrus.WithField("cron", s.config.CronSchedule).Info("starting destination health scheduler")

	_, err := s.scheduler.Cron(s.config.CronSchedule).Do(func() {
		s.checkAllDestinations(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scheduling destination health checks: %w", err)
	}

	s.scheduler.StartAsync()

	go func() {
		<-ctx.Done()
		logrus.Info("stopping destination health scheduler")
		s.scheduler.Stop()
	}()

	return nil
}

func (s *DestinationHealthService) checkAllDestinations(ctx context.Context) {
	s.checkMutex.Lock()
	if s.checkRunning {
		s.checkMutex.Unlock()
		logrus.Info("destination health check already in progress, skipping")
		return
	}
	s.checkRunning = true
	s.checkMutex.Unlock()

	defer func() {
		s.checkMutex.Lock()
		s.checkRunning = false
		s.checkMutex.Unlock()
	}()

	page, err := s.store.GetMany(ctx, repository.CollectionDestinations, repository.QueryOptions{
		Filter:   map[string]any{"enabled": true},
		PageSize: len(domain.DestinationCatalog),
	})
	if err != nil {
		logrus.WithError(err).Error("could not list destinations for health check")
		return
	}

	checked := 0
	for _, doc := range page.Documents {
		dest := &domain.Destination{}
		if err := repository.DecodeDocument(doc, dest); err != nil {
			logrus.WithFields(logrus.Fields{
				"destination_id": doc.ID(),
				"error":          err.Error(),
			}).Warn("skipping undecodable destination")
			continue
		}

		s.checkDestination(ctx, dest)
		checked++
	}

	s.lastCheckAt = time.Now().UTC()

	logrus.WithField("destinations", checked).Info("destination health check completed")
}

func (s *DestinationHealthService) checkDestination(ctx context.Context, dest *domain.Destination) {
	status, err := s.connectors.For(dest.PlatformType).CheckConnection(ctx, dest)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"destination_id": dest.ID,
			"platform":       dest.PlatformType,
			"error":          err.Error(),
		}).Warn("destination connection check failed")
		status = domain.ConnectionFailed
	}

	if status == dest.Status {
		return
	}

	if _, err := s.store.Update(ctx, repository.CollectionDestinations, dest.ID, map[string]any{
		"status": status,
	}, "scheduler"); err != nil {
		logrus.WithFields(logrus.Fields{
			"destination_id": dest.ID,
			"error":          err.Error(),
		}).Error("could not persist destination status transition")
		return
	}

	logrus.WithFields(logrus.Fields{
		"destination_id": dest.ID,
		"platform":       dest.PlatformType,
		"from":           dest.Status,
		"to":             status,
	}).Info("destination connection status changed")

	if status == domain.ConnectionFailed {
		description := fmt.Sprintf("Connection to destination %s is down", dest.Name)
		if _, err := s.notifier.Notify(ctx, domain.NotificationCritical, domain.CategoryDestinations, description, "scheduler"); err != nil {
			logrus.WithFields(logrus.Fields{
				"destination_id": dest.ID,
				"error":          err.Error(),
			}).Warn("could not record destination health notification")
		}
	}
}

// TriggerManualCheck starts a health check pass outside the cron
// cadence
func (s *DestinationHealthService) TriggerManualCheck() {
	s.checkMutex.Lock()
	if s.checkRunning {
		s.checkMutex.Unlock()
		logrus.Info("destination health check already in progress, ignoring manual trigger")
		return
	}
	s.checkMutex.Unlock()

	logrus.Info("starting manual destination health check")
	go s.checkAllDestinations(context.Background())
}

// GetStatus reports the scheduler's current state
func (s *DestinationHealthService) GetStatus() map[string]any {
	return map[string]any{
		"enabled":       s.config.Enabled,
		"cron":          s.config.CronSchedule,
		"last_check_at": s.lastCheckAt,
	}
}
