package errors

import "errors"

var ErrNotFound = errors.New("resource not found")
var ErrInvalidInput = errors.New("invalid input")
var ErrRebuildInProgress = errors.New("rebuild already in progress")
var ErrSearchDisabled = errors.New("search index is not configured")
