package adplatform

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

// GenericConnector serves platforms without a live API integration.
// It accepts deliveries at face value and reports the connection
// healthy; the real integrations are registered over it per platform.
type GenericConnector struct{}

func NewGenericConnector() *GenericConnector {
	return &GenericConnector{}
}

func (c *GenericConnector) Deliver(ctx context.Context, dest *domain.Destination, req *DeliveryRequest) (*DeliveryResult, error) {
	logrus.WithFields(logrus.Fields{
		"audience_id": req.AudienceID,
		"destination": dest.Name,
		"platform":    dest.PlatformType,
		"size":        req.Size,
	}).Info("generic connector: delivery accepted")

	return &DeliveryResult{
		Size:      req.Size,
		MatchRate: 1.0,
	}, nil
}

func (c *GenericConnector) CheckConnection(ctx context.Context, dest *domain.Destination) (domain.ConnectionStatus, error) {
	return domain.ConnectionActive, nil
}
