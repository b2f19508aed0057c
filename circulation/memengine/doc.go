// Package memengine provides an in-process implementation of circulation.Store.
//
// It keeps all data in memory and serializes transactions per book with a
// golang.org/x/sync/semaphore token, so it is suited for tests, simulations,
// and single-process deployments that do not need durability.
//
// Usage:
//
//	store := memengine.NewStore()
//	coordinator, _ := circulation.NewCoordinator(store)
package memengine
