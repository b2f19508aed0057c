// Package circulation provides the circulation core of a library: a copy-inventory ledger,
// the loan state machine, a FIFO reservation queue, and the Coordinator that runs
// borrow, return, reserve and inventory adjustments as one atomic unit per book.
//
// The ledger, loan and reservation functions are pure: they take the current state and return
// the next one. Only the Coordinator sequences them, always inside Store.Transact, which
// serializes all writes of one book while different books proceed in parallel.
//
// Key types:
//   - BookInventory: total, available and shortfall copy counters per book
//   - Loan: one copy lent to one borrower; overdue is a read-time classification
//   - Reservation: a queued request for the next free copy
//   - Store: persistence plus the per-book serialization token (see memengine, postgresengine)
//
// Common usage pattern:
//
//	store := memengine.NewStore()
//	coordinator, err := circulation.NewCoordinator(store, circulation.WithLogger(slog.Default()))
//	if err != nil {
//		// handle error
//	}
//
//	_, err = coordinator.AdjustInventory(ctx, bookID, 2)
//	loan, err := coordinator.Borrow(ctx, bookID, memberID, 0)
//	if errors.Is(err, circulation.ErrOutOfStock) {
//		result, err := coordinator.Reserve(ctx, bookID, memberID)
//	}
//
// Business rejections (IsBusinessRejection) leave all data untouched and are never retried.
// ErrInventoryCorruption means the ledger was already inconsistent before the call.
package circulation
