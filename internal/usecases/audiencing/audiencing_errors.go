package audiencing

import "github.com/pkg/errors"

var (
	ErrUnknownAudience        = errors.New("unknown audience")
	ErrDuplicateAudienceName  = errors.New("audience name already in use")
	ErrUnknownSourceAudience  = errors.New("unknown lookalike source audience")
	ErrSourceNotLookalikeable = errors.New("source audience is not eligible for lookalikes")
	ErrInvalidLookalike       = errors.New("invalid lookalike parameters")
)
