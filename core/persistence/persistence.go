/*Package persistence defines the storage backend contract consumed by the
record store. The store flushes its full content after each successful
mutation and restores it on startup; it works identically against any driver.
*/
package persistence

import "github.com/mockfold/mockfold/core/record"

// Driver defines the interface for persistence backends
type Driver interface {
	// Save persists the full collection set.
	Save(data map[string][]record.Record) error
	// Load returns the last persisted collection set, or an empty set if
	// nothing has been saved yet.
	Load() (map[string][]record.Record, error)
	// Backup stores a named snapshot of the current state and returns its id.
	// An empty id asks the driver to generate one.
	Backup(id string) (string, error)
	// Restore returns the collection set of a snapshot.
	Restore(id string) (map[string][]record.Record, error)
}

// DriverType represents the different types of persistence drivers
type DriverType string

// DriverTypeMemory is the in-memory implementation of the persistence contract
const DriverTypeMemory DriverType = "Memory"

// None is used when there is no persistence
const None DriverType = ""
