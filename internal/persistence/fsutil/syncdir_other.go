//go:build !unix

package fsutil

// Directory handles cannot be fsynced here; the rename is as durable as it gets.
func dirSyncUnsupported(error) bool { return true }
