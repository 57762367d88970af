package models

import "errors"

var (
	ErrMissingInput    = errors.New("missing input")
	ErrMalformedRecord = errors.New("malformed record")
	ErrNoDataLoaded    = errors.New("no data loaded")
	ErrEmptyResult     = errors.New("empty result")
	ErrInvalidBounds   = errors.New("invalid bounds")
	ErrNotFound        = errors.New("not found")
)
