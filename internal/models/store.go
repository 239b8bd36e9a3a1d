package models

import "errors"

// ErrNotFound is wrapped by store lookups when no record has the requested id.
var ErrNotFound = errors.New("record not found")
