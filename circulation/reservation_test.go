package circulation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/library-circulation-go/circulation"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/helper"
)

func givenEmptyBookState(bookID BookID) BookState {
	return BookState{Inventory: BookInventory{BookID: bookID, TotalCopies: 1}}
}

func Test_Enqueue_Assigns_GaplessIncreasing_Positions(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	state := givenEmptyBookState("b1")

	// act
	state, first, err1 := Enqueue(state, GivenUniqueID(t), "m1", now)
	state, second, err2 := Enqueue(state, GivenUniqueID(t), "m2", now)
	state, third, err3 := Enqueue(state, GivenUniqueID(t), "m3", now)

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.Equal(t, uint64(1), first.QueuePosition)
	assert.Equal(t, uint64(2), second.QueuePosition)
	assert.Equal(t, uint64(3), third.QueuePosition)
	assert.Equal(t, uint64(3), state.Inventory.ReservationSeq)
	assert.Len(t, state.Waiting, 3)
	assert.Equal(t, ReservationWaiting, third.Status)
}

func Test_Enqueue_Rejects_Member_Already_Waiting(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	state, _, err := Enqueue(givenEmptyBookState("b1"), GivenUniqueID(t), "m1", now)
	require.NoError(t, err)

	// act
	_, _, err = Enqueue(state, GivenUniqueID(t), "m1", now)

	// assert
	assert.ErrorIs(t, err, ErrAlreadyReserved)
}

func Test_Enqueue_Rejects_Member_Holding_An_OpenLoan(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	loan, err := NewRequestedLoan(GivenUniqueID(t), "b1", "m1", now).Activate(now, time.Hour)
	require.NoError(t, err)
	state := givenEmptyBookState("b1")
	state.OpenLoans = []Loan{loan}

	// act
	_, _, err = Enqueue(state, GivenUniqueID(t), "m1", now)

	// assert
	assert.ErrorIs(t, err, ErrDuplicateLoan)
}

func Test_Reservation_Cancel_Only_While_Waiting(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	_, r, err := Enqueue(givenEmptyBookState("b1"), GivenUniqueID(t), "m1", now)
	require.NoError(t, err)

	// act
	cancelled, err := r.Cancel(now)
	_, errAgain := cancelled.Cancel(now)

	// assert
	require.NoError(t, err)
	assert.Equal(t, ReservationCancelled, cancelled.Status)
	assert.Equal(t, r.QueuePosition, cancelled.QueuePosition)
	assert.ErrorIs(t, errAgain, ErrReservationNotWaiting)
}

func Test_PromoteNext_Picks_The_Lowest_Position(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	state := givenEmptyBookState("b1")
	state, head, _ := Enqueue(state, GivenUniqueID(t), "m1", now)
	state, next, _ := Enqueue(state, GivenUniqueID(t), "m2", now)

	// act
	promotion := PromoteNext(state, now, 0)

	// assert
	require.NotNil(t, promotion.Fulfilled)
	assert.Equal(t, head.ID, promotion.Fulfilled.ID)
	assert.Equal(t, ReservationFulfilled, promotion.Fulfilled.Status)
	assert.Empty(t, promotion.Skipped)
	require.Len(t, promotion.Waiting, 1)
	assert.Equal(t, next.ID, promotion.Waiting[0].ID)
}

func Test_PromoteNext_Returns_None_For_An_EmptyQueue(t *testing.T) {
	// act
	promotion := PromoteNext(givenEmptyBookState("b1"), GivenFixedTime(), 0)

	// assert
	assert.Nil(t, promotion.Fulfilled)
	assert.Empty(t, promotion.Skipped)
	assert.Empty(t, promotion.Waiting)
}

func Test_PromoteNext_Skips_Expired_And_Cancels_Members_With_An_OpenLoan(t *testing.T) {
	// arrange
	start := GivenFixedTime()
	holdWindow := 48 * time.Hour
	state := givenEmptyBookState("b1")
	state, stale, _ := Enqueue(state, GivenUniqueID(t), "m1", start)
	state, holder, _ := Enqueue(state, GivenUniqueID(t), "m2", start.Add(36*time.Hour))
	state, eligible, _ := Enqueue(state, GivenUniqueID(t), "m3", start.Add(36*time.Hour))

	now := start.Add(72 * time.Hour)
	loan, err := NewRequestedLoan(GivenUniqueID(t), "b1", "m2", now).Activate(now, time.Hour)
	require.NoError(t, err)
	state.OpenLoans = []Loan{loan}

	// act
	promotion := PromoteNext(state, now, holdWindow)

	// assert
	require.NotNil(t, promotion.Fulfilled)
	assert.Equal(t, eligible.ID, promotion.Fulfilled.ID)
	require.Len(t, promotion.Skipped, 2)
	assert.Equal(t, stale.ID, promotion.Skipped[0].ID)
	assert.Equal(t, ReservationExpired, promotion.Skipped[0].Status)
	assert.Equal(t, holder.ID, promotion.Skipped[1].ID)
	assert.Equal(t, ReservationCancelled, promotion.Skipped[1].Status)
	assert.Empty(t, promotion.Waiting)
}

func Test_ExpireStale_Expires_Only_Reservations_Past_The_HoldWindow(t *testing.T) {
	// arrange
	start := GivenFixedTime()
	state := givenEmptyBookState("b1")
	state, old, _ := Enqueue(state, GivenUniqueID(t), "m1", start)
	state, fresh, _ := Enqueue(state, GivenUniqueID(t), "m2", start.Add(time.Hour))

	// act
	remaining, expired := ExpireStale(state.Waiting, start.Add(90*time.Minute), time.Hour)
	remainingNoWindow, expiredNoWindow := ExpireStale(state.Waiting, start.Add(1000*time.Hour), 0)

	// assert
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.Equal(t, ReservationExpired, expired[0].Status)
	require.NotNil(t, expired[0].ResolvedAt)
	assert.Equal(t, start.Add(time.Hour), *expired[0].ResolvedAt)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
	assert.Len(t, remainingNoWindow, 2)
	assert.Empty(t, expiredNoWindow)
}

func Test_Reservation_StatusAt_Applies_Lazy_Expiry(t *testing.T) {
	// arrange
	start := GivenFixedTime()
	_, r, err := Enqueue(givenEmptyBookState("b1"), GivenUniqueID(t), "m1", start)
	require.NoError(t, err)

	// act
	before := r.StatusAt(start.Add(time.Hour), 2*time.Hour)
	after := r.StatusAt(start.Add(3*time.Hour), 2*time.Hour)

	// assert
	assert.Equal(t, ReservationWaiting, before)
	assert.Equal(t, ReservationExpired, after)
	assert.Equal(t, ReservationWaiting, r.Status)
}
