package store

import "errors"

var (
	ErrWALNotInitialized = errors.New("WAL not initialized")
	ErrStoreClosed       = errors.New("store is closed")
)
