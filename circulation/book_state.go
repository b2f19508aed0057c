package circulation

// BookState is everything a transaction on one book may decide on.
// It is loaded by the Store while the book's serialization token is held.
type BookState struct {
	Inventory BookInventory

	// OpenLoans holds the book's loans that still hold a copy, in borrow order.
	OpenLoans []Loan

	// Waiting holds the book's reservations with stored status waiting, ordered by queue position.
	Waiting []Reservation
}

// Changes is what a transaction wants the Store to persist, all or nothing.
//
// Loans and Reservations are upserts keyed by id and must be applied in slice order,
// so that a loan is closed before a new open loan for the same book is inserted.
type Changes struct {
	Inventory    *BookInventory
	Loans        []Loan
	Reservations []Reservation
}

// IsEmpty reports whether there is nothing to persist.
func (c Changes) IsEmpty() bool {
	return c.Inventory == nil && len(c.Loans) == 0 && len(c.Reservations) == 0
}

// TransactFunc decides on the loaded state of one book.
// If it returns an error, nothing is persisted and the error is handed back unchanged.
type TransactFunc func(state BookState) (Changes, error)

// HasOpenLoan reports whether the member holds an open loan in the given state.
func (s BookState) HasOpenLoan(memberID MemberID) bool {
	for _, loan := range s.OpenLoans {
		if loan.BorrowerID == memberID && loan.IsOpen() {
			return true
		}
	}

	return false
}

// HasWaitingReservation reports whether the member holds a waiting reservation in the given state.
func (s BookState) HasWaitingReservation(memberID MemberID) bool {
	for _, r := range s.Waiting {
		if r.MemberID == memberID && r.Status == ReservationWaiting {
			return true
		}
	}

	return false
}
