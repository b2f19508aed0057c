package circulation

import (
	"time"

	"github.com/google/uuid"
)

// BookID identifies a book title; it is issued by the external catalog.
type BookID = string

// MemberID identifies a library member (borrower or reservation holder); it is issued by the identity provider.
type MemberID = string

// LoanID identifies a loan record.
type LoanID = uuid.UUID

// ReservationID identifies a reservation.
type ReservationID = uuid.UUID

// ToTimestamp normalizes t to UTC with microsecond precision, which is what Postgres stores.
func ToTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// BookInventory holds the copy counters of one book title.
//
// Lent copies are TotalCopies - AvailableCopies + Shortfall. Shortfall is only non-zero after
// TotalCopies was reduced below the number of copies lent out at that time.
type BookInventory struct {
	BookID          BookID
	TotalCopies     int
	AvailableCopies int
	Shortfall       int
	ReservationSeq  uint64
	UpdatedAt       time.Time
}

// LentCopies returns the number of copies currently lent out.
func (inv BookInventory) LentCopies() int {
	return inv.TotalCopies - inv.AvailableCopies + inv.Shortfall
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	// LoanRequested is transient: the loan exists but no copy has been taken from the ledger yet.
	LoanRequested LoanStatus = "requested"

	// LoanActive means the borrower holds a copy.
	LoanActive LoanStatus = "active"

	// LoanOverdue is never stored; it is how an active loan past its due date reads.
	LoanOverdue LoanStatus = "overdue"

	// LoanReturned is terminal.
	LoanReturned LoanStatus = "returned"
)

// Loan ties one copy of a book to one borrower for a bounded period.
// Status holds the stored state; use StatusAt to read it with overdue classification applied.
type Loan struct {
	ID         LoanID
	BookID     BookID
	BorrowerID MemberID
	Status     LoanStatus
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationWaiting   ReservationStatus = "waiting"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a standing request to receive the next copy of a book that frees up.
type Reservation struct {
	ID            ReservationID
	BookID        BookID
	MemberID      MemberID
	QueuePosition uint64
	CreatedAt     time.Time
	Status        ReservationStatus
	ResolvedAt    *time.Time
}

// CatalogEntry is what the external catalog knows about a book.
type CatalogEntry struct {
	BookID      BookID
	Title       string
	TotalCopies int
}

// Book combines the catalog entry with the ledger counters.
type Book struct {
	Catalog   CatalogEntry
	Inventory BookInventory
}

func timePtr(t time.Time) *time.Time {
	return &t
}
