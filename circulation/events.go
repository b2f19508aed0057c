package circulation

import (
	"context"
	"time"
)

// EventType names a circulation event.
type EventType string

// Event types emitted by the Coordinator.
const (
	EventLoanActivated        EventType = "loanActivated"
	EventLoanReturned         EventType = "loanReturned"
	EventReservationFulfilled EventType = "reservationFulfilled"
	EventCopyOutOfStock       EventType = "copyOutOfStock"
	EventReservationPlaced    EventType = "reservationPlaced"
	EventReservationCancelled EventType = "reservationCancelled"
	EventInventoryAdjusted    EventType = "inventoryAdjusted"
)

// Event describes something that happened to a book, for external consumers.
// Fields that do not apply to the event type are left at their zero value.
type Event struct {
	Type            EventType
	OccurredAt      time.Time
	BookID          BookID
	MemberID        MemberID
	LoanID          LoanID
	ReservationID   ReservationID
	DueAt           time.Time
	AvailableCopies int
	TotalCopies     int
}

// Notifier receives events after the transaction that caused them has committed.
// Delivery is at most once and best effort: a Notifier error is logged and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

func loanActivatedEvent(loan Loan, inv BookInventory) Event {
	return Event{
		Type:            EventLoanActivated,
		OccurredAt:      loan.BorrowedAt,
		BookID:          loan.BookID,
		MemberID:        loan.BorrowerID,
		LoanID:          loan.ID,
		DueAt:           loan.DueAt,
		AvailableCopies: inv.AvailableCopies,
		TotalCopies:     inv.TotalCopies,
	}
}

func loanReturnedEvent(loan Loan, inv BookInventory) Event {
	e := Event{
		Type:            EventLoanReturned,
		BookID:          loan.BookID,
		MemberID:        loan.BorrowerID,
		LoanID:          loan.ID,
		DueAt:           loan.DueAt,
		AvailableCopies: inv.AvailableCopies,
		TotalCopies:     inv.TotalCopies,
	}
	if loan.ReturnedAt != nil {
		e.OccurredAt = *loan.ReturnedAt
	}

	return e
}

func reservationEvent(eventType EventType, r Reservation, at time.Time) Event {
	return Event{
		Type:          eventType,
		OccurredAt:    ToTimestamp(at),
		BookID:        r.BookID,
		MemberID:      r.MemberID,
		ReservationID: r.ID,
	}
}

func fulfilledEvent(r Reservation, loan Loan) Event {
	e := reservationEvent(EventReservationFulfilled, r, loan.BorrowedAt)
	e.LoanID = loan.ID
	e.DueAt = loan.DueAt

	return e
}

func outOfStockEvent(bookID BookID, memberID MemberID, inv BookInventory, at time.Time) Event {
	return Event{
		Type:            EventCopyOutOfStock,
		OccurredAt:      ToTimestamp(at),
		BookID:          bookID,
		MemberID:        memberID,
		AvailableCopies: inv.AvailableCopies,
		TotalCopies:     inv.TotalCopies,
	}
}

func inventoryAdjustedEvent(inv BookInventory, at time.Time) Event {
	return Event{
		Type:            EventInventoryAdjusted,
		OccurredAt:      ToTimestamp(at),
		BookID:          inv.BookID,
		AvailableCopies: inv.AvailableCopies,
		TotalCopies:     inv.TotalCopies,
	}
}
