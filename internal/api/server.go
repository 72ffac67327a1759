package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justinas/alice"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/internal/api/handler"
	"github.com/vfg2006/audience-delivery-api/internal/api/handler/router"
	"github.com/vfg2006/audience-delivery-api/internal/config"
	"github.com/vfg2006/audience-delivery-api/internal/scheduler"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/audiencing"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/delivering"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/destinating"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/engaging"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
	"github.com/vfg2006/audience-delivery-api/pkg/middleware"
)

type Server struct {
	httpServer *http.Server
}

func New(
	config *config.Config,
	audienceService audiencing.AudienceService,
	engagementService engaging.EngagementService,
	destinationService destinating.DestinationService,
	deliveryTracker delivering.DeliveryTracker,
	notifier notifying.Notifier,
	deliverySyncService *scheduler.DeliverySyncService,
	destinationHealthService *scheduler.DestinationHealthService,
) (*Server, error) {
	cronServices := handler.CronJobServices{
		DeliverySyncService:      deliverySyncService,
		DestinationHealthService: destinationHealthService,
	}

	rt := router.New(
		router.WithRoutes(handler.Healthcheck()...),
		router.WithRoutes(handler.Audiences(audienceService)...),
		router.WithRoutes(handler.Engagements(engagementService)...),
		router.WithRoutes(handler.Destinations(destinationService)...),
		router.WithRoutes(handler.Deliveries(deliveryTracker)...),
		router.WithRoutes(handler.Notifications(notifier)...),
		router.WithRoutes(handler.CronJobs(cronServices)...),
	)

	middlewares := []alice.Constructor{
		middleware.LogPanicMiddleware(),
		middleware.LoggingMiddleware(),
		middleware.Cors(),
	}

	chained := alice.New(middlewares...).Then(rt)

	srv := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
			Handler:           chained,
			ReadHeaderTimeout: 2 * time.Second,
		},
	}

	return srv, nil
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		logrus.WithFields(logrus.Fields{
			"address": s.httpServer.Addr,
		}).Info("server starting")

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("error running server")
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		logrus.Info("interrupt signal received")
	case <-ctx.Done():
		logrus.Info("application context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"timeout": "15s",
	}).Info("starting graceful server shutdown")

	if err := s.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("error during server shutdown")
		return err
	}

	logrus.Info("server shut down successfully")
	return nil
}

func (s Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return err
	}

	logrus.Info("http server shut down")
	return nil
}
