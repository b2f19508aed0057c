package circulation

import (
	"time"
)

// NewRequestedLoan creates a loan in the transient requested state.
// It only becomes active once a copy was taken from the ledger, see Activate.
func NewRequestedLoan(id LoanID, bookID BookID, borrowerID MemberID, now time.Time) Loan {
	return Loan{
		ID:         id,
		BookID:     bookID,
		BorrowerID: borrowerID,
		Status:     LoanRequested,
		BorrowedAt: ToTimestamp(now),
	}
}

// Activate moves a requested loan to active, starting the loan period at now.
func (l Loan) Activate(now time.Time, period time.Duration) (Loan, error) {
	if period <= 0 {
		return l, ErrInvalidLoanPeriod
	}

	if l.Status != LoanRequested {
		return l, ErrNotActive
	}

	now = ToTimestamp(now)
	l.Status = LoanActive
	l.BorrowedAt = now
	l.DueAt = ToTimestamp(now.Add(period))

	return l, nil
}

// Return closes an active (or overdue) loan. A returned loan never changes again.
func (l Loan) Return(now time.Time) (Loan, error) {
	if l.Status != LoanActive {
		return l, ErrNotActive
	}

	l.Status = LoanReturned
	l.ReturnedAt = timePtr(ToTimestamp(now))

	return l, nil
}

// StatusAt reads the loan status at the given time.
// An active loan past its due date reads as overdue; nothing is written for that.
func (l Loan) StatusAt(now time.Time) LoanStatus {
	if l.Status == LoanActive && l.ReturnedAt == nil && now.After(l.DueAt) {
		return LoanOverdue
	}

	return l.Status
}

// IsOpen reports whether the loan still holds a copy (active or overdue).
func (l Loan) IsOpen() bool {
	return l.Status == LoanActive && l.ReturnedAt == nil
}

// AsOf returns a copy of the loan with Status replaced by StatusAt(now), for handing to readers.
func (l Loan) AsOf(now time.Time) Loan {
	l.Status = l.StatusAt(now)
	return l
}
