package storage

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrReferenceMissing = errors.New("referenced record does not exist")
	ErrStateConflict    = errors.New("record is not in a state that allows this change")
)
