package circulation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultLoanPeriod is used when Borrow is called with a zero loan period and no other default is configured.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// ReturnResult is the outcome of Return.
type ReturnResult struct {
	Returned Loan

	// Promoted is the loan created for the head of the reservation queue, nil if the copy became available.
	Promoted *Loan

	// Fulfilled is the reservation that received the copy, nil if none.
	Fulfilled *Reservation
}

// ReserveResult is the outcome of Reserve. Exactly one of Loan and Reservation is set.
type ReserveResult struct {
	// Loan is set if a copy was free and the member borrowed it right away.
	Loan *Loan

	// Reservation is set if the member was queued.
	Reservation *Reservation
}

// Coordinator is the transactional boundary of circulation.
// Every write operation is one Store.Transact call scoped to a single book.
type Coordinator struct {
	store             Store
	catalog           Catalog
	notifier          Notifier
	logger            Logger
	contextualLogger  ContextualLogger
	metricsCollector  MetricsCollector
	tracingCollector  TracingCollector
	clock             func() time.Time
	newID             func() (uuid.UUID, error)
	defaultLoanPeriod time.Duration
	holdWindow        time.Duration
	finePolicy        FinePolicy
}

// NewCoordinator creates a Coordinator on top of the given Store with optional configuration.
func NewCoordinator(store Store, options ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	c := &Coordinator{
		store:             store,
		clock:             time.Now,
		newID:             uuid.NewV7,
		defaultLoanPeriod: DefaultLoanPeriod,
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Borrow lends one copy of the book to the borrower.
//
// A zero loanPeriod uses the configured default. It fails with ErrDuplicateLoan if the borrower
// already holds an open loan for the book and with ErrOutOfStock if no copy is available,
// in which case the caller may offer a reservation instead.
func (c *Coordinator) Borrow(
	ctx context.Context,
	bookID BookID,
	borrowerID MemberID,
	loanPeriod time.Duration,
) (Loan, error) {

	obs, ctx := c.startOperation(ctx, operationBorrow, bookID, logAttrMemberID, borrowerID)

	period, err := c.loanPeriod(loanPeriod)
	if err != nil {
		obs.finish(err, nil)
		return Loan{}, err
	}

	var loan Loan
	var stock BookInventory

	tx, err := c.transact(ctx, bookID, func(tx *bookTx) error {
		stock = tx.state.Inventory

		borrowed, borrowErr := tx.borrow(borrowerID, period)
		if borrowErr != nil {
			return borrowErr
		}

		loan = borrowed

		return nil
	})

	if errors.Is(err, ErrOutOfStock) {
		c.notify(ctx, outOfStockEvent(bookID, borrowerID, stock, c.clock()))
	}

	if err != nil {
		obs.finish(err, nil)
		return Loan{}, err
	}

	obs.finish(nil, &tx.state.Inventory, logAttrLoanID, loan.ID.String())

	return loan, nil
}

// Return closes an open loan and hands the copy to the head of the reservation queue, if any.
//
// It fails with ErrLoanNotFound for an unknown loan and with ErrNotActive if the loan was already returned.
func (c *Coordinator) Return(ctx context.Context, loanID LoanID) (ReturnResult, error) {
	obs, ctx := c.startOperation(ctx, operationReturn, "", logAttrLoanID, loanID.String())

	stored, err := c.store.Loan(WithStrongConsistency(ctx), loanID)
	if err != nil {
		obs.finish(err, nil)
		return ReturnResult{}, err
	}

	obs.bookID = stored.BookID

	var result ReturnResult

	tx, err := c.transact(ctx, stored.BookID, func(tx *bookTx) error {
		returned, freed, returnErr := tx.returnLoan(loanID)
		if returnErr != nil {
			return returnErr
		}

		result = ReturnResult{Returned: returned}

		if !freed {
			return nil
		}

		promoted, fulfilled, promoteErr := tx.promoteOne()
		if promoteErr != nil {
			return promoteErr
		}

		result.Promoted = promoted
		result.Fulfilled = fulfilled

		return nil
	})

	if err != nil {
		obs.finish(err, nil)
		return ReturnResult{}, err
	}

	obs.finish(nil, &tx.state.Inventory, logAttrPromoted, result.Promoted != nil)

	return result, nil
}

// Reserve queues the member for the book.
//
// If a copy is available right now, the member borrows it immediately for the default loan period
// instead of being queued. It fails with ErrAlreadyReserved if the member is already waiting for
// the book and with ErrDuplicateLoan if the member holds an open loan for it.
func (c *Coordinator) Reserve(ctx context.Context, bookID BookID, memberID MemberID) (ReserveResult, error) {
	obs, ctx := c.startOperation(ctx, operationReserve, bookID, logAttrMemberID, memberID)

	var result ReserveResult

	tx, err := c.transact(ctx, bookID, func(tx *bookTx) error {
		if tx.state.Inventory.AvailableCopies > 0 {
			loan, borrowErr := tx.borrow(memberID, c.defaultLoanPeriod)
			if borrowErr != nil {
				return borrowErr
			}

			result = ReserveResult{Loan: &loan}

			return nil
		}

		reservation, enqueueErr := tx.enqueue(memberID)
		if enqueueErr != nil {
			return enqueueErr
		}

		result = ReserveResult{Reservation: &reservation}

		return nil
	})

	if err != nil {
		obs.finish(err, nil)
		return ReserveResult{}, err
	}

	obs.finish(nil, &tx.state.Inventory, logAttrQueued, result.Reservation != nil)

	return result, nil
}

// CancelReservation withdraws a waiting reservation.
//
// It fails with ErrReservationNotFound for an unknown reservation and with ErrReservationNotWaiting
// if the reservation was already fulfilled, cancelled, or has expired.
func (c *Coordinator) CancelReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	obs, ctx := c.startOperation(ctx, operationCancelReservation, "", logAttrReservationID, reservationID.String())

	stored, err := c.store.Reservation(WithStrongConsistency(ctx), reservationID)
	if err != nil {
		obs.finish(err, nil)
		return Reservation{}, err
	}

	obs.bookID = stored.BookID

	var cancelled Reservation

	tx, err := c.transact(ctx, stored.BookID, func(tx *bookTx) error {
		r, cancelErr := tx.cancel(reservationID)
		if cancelErr != nil {
			return cancelErr
		}

		cancelled = r

		return nil
	})

	if err != nil {
		obs.finish(err, nil)
		return Reservation{}, err
	}

	obs.finish(nil, &tx.state.Inventory)

	return cancelled, nil
}

// AdjustInventory sets the total number of copies of a book, creating its ledger row if needed.
//
// If a Catalog is configured, the book must exist there. Copies added while members are waiting
// go to the reservation queue first. Reducing the total below the number of copies lent out
// floors the available copies at zero and records the missing copies as shortfall.
func (c *Coordinator) AdjustInventory(ctx context.Context, bookID BookID, newTotal int) (BookInventory, error) {
	obs, ctx := c.startOperation(ctx, operationAdjustInventory, bookID, logAttrTotalCopies, newTotal)

	if newTotal < 0 {
		obs.finish(ErrInvalidCopyCount, nil)
		return BookInventory{}, ErrInvalidCopyCount
	}

	if c.catalog != nil {
		if _, err := c.catalog.LookupBook(ctx, bookID); err != nil {
			obs.finish(err, nil)
			return BookInventory{}, err
		}
	}

	var shortfall int

	tx, err := c.run(ctx, c.store.TransactOrCreate, bookID, func(tx *bookTx) error {
		inv, missing, setErr := SetTotalCopies(tx.state.Inventory, newTotal)
		if setErr != nil {
			return setErr
		}

		shortfall = missing
		tx.putInventory(inv)

		for tx.state.Inventory.AvailableCopies > 0 {
			promoted, _, promoteErr := tx.promoteOne()
			if promoteErr != nil {
				return promoteErr
			}

			if promoted == nil {
				break
			}
		}

		tx.emit(inventoryAdjustedEvent(tx.state.Inventory, tx.now))

		return nil
	})

	if err != nil {
		obs.finish(err, nil)
		return BookInventory{}, err
	}

	if shortfall > 0 {
		c.logWarn(ctx, logMsgShortfall, logAttrBookID, bookID, logAttrShortfall, shortfall,
			logAttrTotalCopies, newTotal)
	}

	obs.finish(nil, &tx.state.Inventory, logAttrShortfall, shortfall)

	return tx.state.Inventory, nil
}

// Loan returns a loan with its status as of now, overdue included.
func (c *Coordinator) Loan(ctx context.Context, loanID LoanID) (Loan, error) {
	loan, err := c.store.Loan(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}

	return loan.AsOf(c.clock()), nil
}

// LoansForMember returns all loans of the member with their status as of now.
func (c *Coordinator) LoansForMember(ctx context.Context, memberID MemberID) ([]Loan, error) {
	loans, err := c.store.LoansForMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := c.clock()
	for i := range loans {
		loans[i] = loans[i].AsOf(now)
	}

	return loans, nil
}

// Inventory returns the ledger counters of a book.
func (c *Coordinator) Inventory(ctx context.Context, bookID BookID) (BookInventory, error) {
	return c.store.Inventory(ctx, bookID)
}

// Book returns the catalog entry together with the ledger counters.
// Without a configured Catalog, the entry only carries the book id.
func (c *Coordinator) Book(ctx context.Context, bookID BookID) (Book, error) {
	entry := CatalogEntry{BookID: bookID}

	if c.catalog != nil {
		found, err := c.catalog.LookupBook(ctx, bookID)
		if err != nil {
			return Book{}, err
		}

		entry = found
	}

	inv, err := c.store.Inventory(ctx, bookID)
	if err != nil {
		return Book{}, err
	}

	return Book{Catalog: entry, Inventory: inv}, nil
}

// Reservations returns every reservation of a book ordered by queue position, with lazy expiry applied.
func (c *Coordinator) Reservations(ctx context.Context, bookID BookID) ([]Reservation, error) {
	reservations, err := c.store.Reservations(ctx, bookID)
	if err != nil {
		return nil, err
	}

	now := c.clock()
	for i := range reservations {
		reservations[i] = reservations[i].AsOf(now, c.holdWindow)
	}

	return reservations, nil
}

// Queue returns the reservations of a book that are still waiting, head first.
func (c *Coordinator) Queue(ctx context.Context, bookID BookID) ([]Reservation, error) {
	reservations, err := c.Reservations(ctx, bookID)
	if err != nil {
		return nil, err
	}

	waiting := make([]Reservation, 0, len(reservations))
	for _, r := range reservations {
		if r.Status == ReservationWaiting {
			waiting = append(waiting, r)
		}
	}

	return waiting, nil
}

// Fine returns the fine of a loan as of now under the configured FinePolicy.
func (c *Coordinator) Fine(ctx context.Context, loanID LoanID) (Fine, error) {
	loan, err := c.store.Loan(ctx, loanID)
	if err != nil {
		return Fine{}, err
	}

	return FineFor(loan, c.finePolicy, c.clock()), nil
}

func (c *Coordinator) loanPeriod(requested time.Duration) (time.Duration, error) {
	switch {
	case requested < 0:
		return 0, ErrInvalidLoanPeriod
	case requested == 0:
		return c.defaultLoanPeriod, nil
	default:
		return requested, nil
	}
}

// transact runs decide on the loaded state of one book and emits the collected events after commit.
// The invariant check and the lazy expiry of stale reservations run before decide.
func (c *Coordinator) transact(ctx context.Context, bookID BookID, decide func(tx *bookTx) error) (*bookTx, error) {
	return c.run(ctx, c.store.Transact, bookID, decide)
}

func (c *Coordinator) run(
	ctx context.Context,
	storeTransact func(ctx context.Context, bookID BookID, fn TransactFunc) error,
	bookID BookID,
	decide func(tx *bookTx) error,
) (*bookTx, error) {

	var committed *bookTx

	err := storeTransact(ctx, bookID, func(state BookState) (Changes, error) {
		tx := newBookTx(c, state)

		if err := CheckInvariants(state.Inventory, len(state.OpenLoans)); err != nil {
			return Changes{}, err
		}

		tx.expireStale()

		if err := decide(tx); err != nil {
			return Changes{}, err
		}

		committed = tx

		return tx.changes(), nil
	})

	if err != nil {
		return nil, err
	}

	for _, event := range committed.events {
		c.notify(ctx, event)
	}

	return committed, nil
}

func (c *Coordinator) notify(ctx context.Context, event Event) {
	if c.notifier == nil {
		return
	}

	if err := c.notifier.Notify(ctx, event); err != nil {
		c.logWarn(ctx, logMsgNotifyFailed, logAttrError, err.Error(), logAttrEventType, string(event.Type),
			logAttrBookID, event.BookID)
	}
}
