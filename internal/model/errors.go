package model

import "errors"

var (
	// ErrDataUnavailable is returned when a provider has no bars for a symbol.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientData is returned when a series is too short for a computation.
	ErrInsufficientData = errors.New("insufficient data")
)
