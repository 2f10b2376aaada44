package main

import "errors"

// ErrNotFound is returned when no item in a collection matches the requested id.
var ErrNotFound = errors.New("item not found")

// ErrNoProvider is returned when no AI provider credentials are configured.
var ErrNoProvider = errors.New("no AI provider available")
