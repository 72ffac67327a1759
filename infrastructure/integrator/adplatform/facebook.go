package adplatform

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/integrator/adplatform/facebookclient"
	"github.com/vfg2006/audience-delivery-api/internal/config"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

// FacebookConnector delivers audiences as Facebook custom audiences
type FacebookConnector struct {
	cfg    *config.Config
	client facebookclient.Client
}

func NewFacebookConnector(cfg *config.Config, client facebookclient.Client) *FacebookConnector {
	return &FacebookConnector{
		cfg:    cfg,
		client: client,
	}
}

func (c *FacebookConnector) Deliver(ctx context.Context, dest *domain.Destination, req *DeliveryRequest) (*DeliveryResult, error) {
	var resp *facebookclient.PushResponse
	var err error

	if req.Replace {
		resp, err = c.client.ReplaceUsers(ctx, req.AudienceName, req.Size)
	} else {
		resp, err = c.client.AddUsers(ctx, req.AudienceName, req.Size)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"audience_id": req.AudienceID,
			"destination": dest.Name,
			"error":       err.Error(),
		}).Error("facebook: audience delivery failed")
		return nil, err
	}

	result := &DeliveryResult{
		Size:      resp.NumReceived,
		MatchRate: resp.MatchRateEst,
	}
	if resp.AudienceID != "" {
		result.Campaigns = []domain.Campaign{
			{ID: resp.AudienceID, Name: req.AudienceName},
		}
	}

	logrus.WithFields(logrus.Fields{
		"audience_id": req.AudienceID,
		"destination": dest.Name,
		"received":    resp.NumReceived,
		"invalid":     resp.NumInvalid,
	}).Info("facebook: audience delivered")

	return result, nil
}

func (c *FacebookConnector) CheckConnection(ctx context.Context, dest *domain.Destination) (domain.ConnectionStatus, error) {
	if err := c.client.Ping(ctx); err != nil {
		return domain.ConnectionFailed, err
	}
	return domain.ConnectionActive, nil
}
