package main

import (
	"context"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/database/postgres"
	"github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform"
	"github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform/facebookclient"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/api"
	"github.com/vfg2006/audience-delivery-api/internal/config"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
	"github.com/vfg2006/audience-delivery-api/internal/scheduler"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/audiencing"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/delivering"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/destinating"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/engaging"
	"github.com/vfg2006/audience-delivery-api/internal/usecases/notifying"
)

func main() {
	configureLogger()

	cfg, err := config.NewConfig()
	if err != nil {
		logrus.Fatal(err)
	}

	logLevel, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		logrus.Warnf("invalid log level %s, falling back to info", cfg.App.LogLevel)
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)
	logrus.Infof("log level set to %s", logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgConn := pgconn(ctx, cfg.Database)
	defer pgConn.Close()

	store := repository.NewDocumentStore(pgConn)

	facebookClient := facebookclient.NewClient(cfg)
	connectors := adplatform.NewRegistry(adplatform.NewGenericConnector())
	connectors.Register(domain.PlatformFacebook, adplatform.NewFacebookConnector(cfg, facebookClient))

	notifier := notifying.NewService(store)
	audienceService := audiencing.NewService(store)
	engagementService := engaging.NewService(store)
	destinationService := destinating.NewService(store)
	deliveryTracker := delivering.NewService(store, connectors, notifier)

	if err := destinationService.EnsureCatalog(ctx, "system"); err != nil {
		logrus.WithError(err).Fatal("error seeding the destination catalog")
	}

	deliverySyncService := scheduler.NewDeliverySyncService(store, deliveryTracker, cfg)
	destinationHealthService := scheduler.NewDestinationHealthService(store, connectors, notifier, cfg)

	if err := deliverySyncService.Start(ctx); err != nil {
		logrus.WithError(err).Error("error starting the delivery sync scheduler")
	} else {
		logrus.Info("delivery sync scheduler started")
	}

	if err := destinationHealthService.Start(ctx); err != nil {
		logrus.WithError(err).Error("error starting the destination health scheduler")
	} else {
		logrus.Info("destination health scheduler started")
	}

	server, err := api.New(
		cfg,
		audienceService,
		engagementService,
		destinationService,
		deliveryTracker,
		notifier,
		deliverySyncService,
		destinationHealthService,
	)
	if err != nil {
		logrus.Fatal(err)
	}

	if err := server.Run(ctx); err != nil {
		logrus.Error(err)
	}
}

// configureLogger sets the log format and working directory
func configureLogger() {
	_, file, _, _ := runtime.Caller(0)
	dir := path.Dir(file)
	os.Chdir(dir)

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
}

// pgconn opens and verifies the database connection
func pgconn(ctx context.Context, dbConfig config.Database) *postgres.Connection {
	conn, err := postgres.NewConnection(ctx, dbConfig)
	if err != nil {
		logrus.WithError(err).Fatal("error connecting to PostgreSQL")
	}

	if err := conn.Ping(ctx); err != nil {
		logrus.WithError(err).Fatal("error pinging PostgreSQL")
	}

	logrus.Info("PostgreSQL connection established")
	return conn
}
