package jobstore

import "errors"

// ErrNotFound indicates the requested job does not exist in the store.
var ErrNotFound = errors.New("job not found")

// ErrLocked indicates another process holds the store lock.
var ErrLocked = errors.New("job store is locked by another process")
