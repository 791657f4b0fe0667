package simulate

import "errors"

// Error constants
var (
	ErrNotDense         = errors.New("positions are not dense")
	ErrRejectedMutation = errors.New("rejected operation changed the list")
	ErrReplayMismatch   = errors.New("time machine differs from checkpoint")
	ErrLiveMismatch     = errors.New("replay at now differs from the live list")
	ErrHistoryMismatch  = errors.New("movement history does not end at the live position")
)
