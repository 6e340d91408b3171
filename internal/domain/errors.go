package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateSlug      = errors.New("duplicate slug")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)
