package delivering

import "github.com/pkg/errors"

var (
	ErrUnknownAudience    = errors.New("unknown audience")
	ErrUnknownDestination = errors.New("unknown destination")
	ErrUnknownEngagement  = errors.New("unknown engagement")
	ErrUnknownJob         = errors.New("unknown delivery job")
	ErrInvalidTransition  = errors.New("invalid delivery job transition")
	ErrJobNotTerminal     = errors.New("delivery job has not finished")
)
