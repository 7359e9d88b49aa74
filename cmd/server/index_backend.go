package main

import "strings"

// resolveIndexBackend normalises the configured backend. The index is a read
// model only; turning it off never affects the simulation.
func resolveIndexBackend(backend string, disableDB bool) string {
	if disableDB {
		return "none"
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		return "sqlite"
	case "none", "off", "disabled":
		return "none"
	default:
		// Validate rejects it with a clear message.
		return backend
	}
}
