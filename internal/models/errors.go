package models

import "errors"

// Errors shared by every ingestion gateway.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
)
