package config

import "errors"

var (
	// ErrConfigRequired indicates a required key is missing.
	ErrConfigRequired = errors.New("required configuration missing")

	// ErrConfigInvalid indicates a key is present but unusable.
	ErrConfigInvalid = errors.New("invalid configuration")
)
