package circulation

import (
	"time"
)

// bookTx accumulates the decisions of one transaction on one book.
// state always reflects the changes made so far, so later steps decide on up-to-date counters.
type bookTx struct {
	c                *Coordinator
	now              time.Time
	state            BookState
	inventoryChanged bool
	loans            []Loan
	reservations     []Reservation
	events           []Event
}

func newBookTx(c *Coordinator, state BookState) *bookTx {
	return &bookTx{
		c:     c,
		now:   ToTimestamp(c.clock()),
		state: state,
	}
}

func (tx *bookTx) changes() Changes {
	changes := Changes{
		Loans:        tx.loans,
		Reservations: tx.reservations,
	}

	if tx.inventoryChanged {
		inv := tx.state.Inventory
		inv.UpdatedAt = tx.now
		changes.Inventory = &inv
	}

	return changes
}

func (tx *bookTx) emit(event Event) {
	tx.events = append(tx.events, event)
}

func (tx *bookTx) putInventory(inv BookInventory) {
	tx.state.Inventory = inv
	tx.inventoryChanged = true
}

func (tx *bookTx) putLoan(loan Loan) {
	tx.loans = append(tx.loans, loan)

	open := make([]Loan, 0, len(tx.state.OpenLoans)+1)
	for _, l := range tx.state.OpenLoans {
		if l.ID != loan.ID {
			open = append(open, l)
		}
	}

	if loan.IsOpen() {
		open = append(open, loan)
	}

	tx.state.OpenLoans = open
}

func (tx *bookTx) putReservation(r Reservation) {
	tx.reservations = append(tx.reservations, r)

	waiting := make([]Reservation, 0, len(tx.state.Waiting)+1)
	for _, w := range tx.state.Waiting {
		if w.ID != r.ID {
			waiting = append(waiting, w)
		}
	}

	if r.Status == ReservationWaiting {
		waiting = append(waiting, r)
	}

	tx.state.Waiting = waiting
}

func (tx *bookTx) expireStale() {
	remaining, expired := ExpireStale(tx.state.Waiting, tx.now, tx.c.holdWindow)
	if len(expired) == 0 {
		return
	}

	tx.state.Waiting = remaining
	tx.reservations = append(tx.reservations, expired...)
}

// borrow creates the loan in requested state, takes a copy from the ledger and only then activates it.
// If any step fails, nothing was recorded in tx.
func (tx *bookTx) borrow(borrowerID MemberID, period time.Duration) (Loan, error) {
	if tx.state.HasOpenLoan(borrowerID) {
		return Loan{}, ErrDuplicateLoan
	}

	id, err := tx.c.newID()
	if err != nil {
		return Loan{}, err
	}

	requested := NewRequestedLoan(id, tx.state.Inventory.BookID, borrowerID, tx.now)

	inv, err := ReserveCopy(tx.state.Inventory)
	if err != nil {
		return Loan{}, err
	}

	loan, err := requested.Activate(tx.now, period)
	if err != nil {
		return Loan{}, err
	}

	tx.putInventory(inv)
	tx.putLoan(loan)
	tx.emit(loanActivatedEvent(loan, inv))

	return loan, nil
}

// returnLoan closes the loan and releases its copy.
// freed is false if the copy paid down a shortfall instead of becoming free.
func (tx *bookTx) returnLoan(loanID LoanID) (Loan, bool, error) {
	var open *Loan

	for i := range tx.state.OpenLoans {
		if tx.state.OpenLoans[i].ID == loanID {
			open = &tx.state.OpenLoans[i]
			break
		}
	}

	if open == nil {
		return Loan{}, false, ErrNotActive
	}

	returned, err := open.Return(tx.now)
	if err != nil {
		return Loan{}, false, err
	}

	before := tx.state.Inventory

	inv, err := ReleaseCopy(before)
	if err != nil {
		return Loan{}, false, err
	}

	tx.putInventory(inv)
	tx.putLoan(returned)
	tx.emit(loanReturnedEvent(returned, inv))

	return returned, inv.AvailableCopies > before.AvailableCopies, nil
}

// promoteOne hands one free copy to the head of the queue.
// It returns nil, nil if nobody eligible is waiting, leaving the copy available.
func (tx *bookTx) promoteOne() (*Loan, *Reservation, error) {
	promotion := PromoteNext(tx.state, tx.now, tx.c.holdWindow)

	for _, skipped := range promotion.Skipped {
		tx.putReservation(skipped)
		if skipped.Status == ReservationCancelled {
			tx.emit(reservationEvent(EventReservationCancelled, skipped, tx.now))
		}
	}

	if promotion.Fulfilled == nil {
		return nil, nil, nil
	}

	fulfilled := *promotion.Fulfilled

	loan, err := tx.borrow(fulfilled.MemberID, tx.c.defaultLoanPeriod)
	if err != nil {
		return nil, nil, err
	}

	tx.putReservation(fulfilled)
	tx.emit(fulfilledEvent(fulfilled, loan))

	return &loan, &fulfilled, nil
}

func (tx *bookTx) enqueue(memberID MemberID) (Reservation, error) {
	id, err := tx.c.newID()
	if err != nil {
		return Reservation{}, err
	}

	next, r, err := Enqueue(tx.state, id, memberID, tx.now)
	if err != nil {
		return Reservation{}, err
	}

	tx.putInventory(next.Inventory)
	tx.putReservation(r)
	tx.emit(reservationEvent(EventReservationPlaced, r, tx.now))

	return r, nil
}

func (tx *bookTx) cancel(reservationID ReservationID) (Reservation, error) {
	for _, r := range tx.state.Waiting {
		if r.ID != reservationID {
			continue
		}

		cancelled, err := r.Cancel(tx.now)
		if err != nil {
			return Reservation{}, err
		}

		tx.putReservation(cancelled)
		tx.emit(reservationEvent(EventReservationCancelled, cancelled, tx.now))

		return cancelled, nil
	}

	return Reservation{}, ErrReservationNotWaiting
}
