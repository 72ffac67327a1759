package adplatform

import (
	"context"

	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

// DeliveryRequest carries everything a connector needs to push one
// audience to its platform
type DeliveryRequest struct {
	AudienceID   string
	AudienceName string
	Size         int64
	// Replace: fully replace the remote audience instead of appending
	Replace bool
}

// DeliveryResult is what the platform reported back for a delivery
type DeliveryResult struct {
	Campaigns []domain.Campaign
	Size      int64
	MatchRate float64
}

// Connector is one platform integration. Implementations must be safe
// for concurrent use: the delivery scheduler fans out over them.
type Connector interface {
	Deliver(ctx context.Context, dest *domain.Destination, req *DeliveryRequest) (*DeliveryResult, error)
	CheckConnection(ctx context.Context, dest *domain.Destination) (domain.ConnectionStatus, error)
}

// Registry resolves the connector for a platform type, falling back to
// the generic connector for platforms without a live integration
type Registry struct {
	connectors map[domain.PlatformType]Connector
	fallback   Connector
}

func NewRegistry(fallback Connector) *Registry {
	return &Registry{
		connectors: make(map[domain.PlatformType]Connector),
		fallback:   fallback,
	}
}

func (r *Registry) Register(platform domain.PlatformType, connector Connector) {
	r.connectors[platform] = connector
}

func (r *Registry) For(platform domain.PlatformType) Connector {
	if connector, ok := r.connectors[platform]; ok {
		return connector
	}
	return r.fallback
}
