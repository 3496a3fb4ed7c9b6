package scrape

import "errors"

// Sentinel errors callers branch on.
var (
	// ErrAlreadyRunning is returned when a run is requested while one is active.
	ErrAlreadyRunning = errors.New("a scrape run is already in progress")
	// ErrNotRunning is returned when a stop is requested with no active run.
	ErrNotRunning = errors.New("no scrape run is in progress")
	// ErrSourceProtected signals the ladder exhausted every tier for a source.
	ErrSourceProtected = errors.New("source protected: all bypass tiers exhausted")
)
