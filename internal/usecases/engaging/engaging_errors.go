package engaging

import "github.com/pkg/errors"

var (
	ErrUnknownEngagement          = errors.New("unknown engagement")
	ErrUnknownAudience            = errors.New("unknown audience")
	ErrUnknownDestination         = errors.New("unknown destination")
	ErrDuplicateEngagementName    = errors.New("engagement name already in use")
	ErrDuplicateAudience          = errors.New("audience already attached to engagement")
	ErrAudienceNotInEngagement    = errors.New("audience is not attached to engagement")
	ErrDestinationNotInEngagement = errors.New("destination is not attached to audience in engagement")
)
