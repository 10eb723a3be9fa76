package lod

import "errors"

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrUnknownTier   = errors.New("unknown tier")
	ErrNilFactors    = errors.New("factor provider is nil")
)
