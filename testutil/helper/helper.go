// Package helper provides arrange helpers for circulation tests.
package helper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// FakeClock is a manually advanced clock for circulation.WithClock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock standing at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// GivenFixedTime returns a fixed, UTC, microsecond-precision point in time.
func GivenFixedTime() time.Time {
	return time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
}

// GivenUniqueID returns a fresh uuid.
func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id
}

// GivenUniqueBookID returns a fresh book id.
func GivenUniqueBookID(t testing.TB) circulation.BookID {
	return "book-" + GivenUniqueID(t).String()
}

// GivenUniqueMemberID returns a fresh member id.
func GivenUniqueMemberID(t testing.TB) circulation.MemberID {
	return "member-" + GivenUniqueID(t).String()
}

// GivenBookWithCopies puts a book with the given number of copies into circulation.
func GivenBookWithCopies(
	t testing.TB,
	ctx context.Context,
	coordinator *circulation.Coordinator,
	copies int,
) circulation.BookID {

	bookID := GivenUniqueBookID(t)

	_, err := coordinator.AdjustInventory(ctx, bookID, copies)
	require.NoError(t, err, "error in arranging test data")

	return bookID
}

// GivenBookWasBorrowed borrows the book for a new member with the default loan period.
func GivenBookWasBorrowed(
	t testing.TB,
	ctx context.Context,
	coordinator *circulation.Coordinator,
	bookID circulation.BookID,
) circulation.Loan {

	loan, err := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)
	require.NoError(t, err, "error in arranging test data")

	return loan
}

// GivenMemberIsWaiting queues a new member for the book and returns the reservation.
func GivenMemberIsWaiting(
	t testing.TB,
	ctx context.Context,
	coordinator *circulation.Coordinator,
	bookID circulation.BookID,
) circulation.Reservation {

	result, err := coordinator.Reserve(ctx, bookID, GivenUniqueMemberID(t))
	require.NoError(t, err, "error in arranging test data")
	require.NotNil(t, result.Reservation, "error in arranging test data: member was not queued")

	return *result.Reservation
}
