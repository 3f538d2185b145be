package tutor

import "errors"

// Sentinel errors for the tutor package.
// Use errors.Is to check: errors.Is(err, tutor.ErrInvalidConfig)
var (
	ErrInvalidConfig   = errors.New("tutor: invalid configuration")
	ErrUnknownPolicy   = errors.New("tutor: unknown policy")
	ErrInvalidOutcome  = errors.New("tutor: invalid outcome")
	ErrDuplicateItem   = errors.New("tutor: duplicate item id in candidates")
	ErrInvalidSnapshot = errors.New("tutor: invalid session snapshot")
)
