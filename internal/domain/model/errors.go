package model

import "errors"

// Sentinel kinds for domain validation errors.
var (
	ErrValidation = errors.New("invalid snapshot")
)
