package circulation_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	. "github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memengine"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/helper"
	"github.com/AntonStoeckl/library-circulation-go/testutil/observability/testdoubles"
)

func givenCoordinator(t *testing.T, options ...Option) (*Coordinator, *memengine.Store) {
	store := memengine.NewStore()

	coordinator, err := NewCoordinator(store, options...)
	require.NoError(t, err, "creating the coordinator failed")

	return coordinator, store
}

func assertLedgerIsConsistent(t *testing.T, ctx context.Context, store Store, bookID BookID) {
	inv, err := store.Inventory(ctx, bookID)
	require.NoError(t, err)

	open := 0
	seen := map[MemberID]bool{}
	err = store.Transact(ctx, bookID, func(state BookState) (Changes, error) {
		for _, loan := range state.OpenLoans {
			assert.False(t, seen[loan.BorrowerID], "member holds two open loans for the same book")
			seen[loan.BorrowerID] = true
			open++
		}

		return Changes{}, nil
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, inv.AvailableCopies, 0)
	assert.LessOrEqual(t, inv.AvailableCopies, inv.TotalCopies)
	assert.Equal(t, inv.TotalCopies-open+inv.Shortfall, inv.AvailableCopies)
	assert.NoError(t, CheckInvariants(inv, open))
}

func Test_NewCoordinator_Rejects_Invalid_Configuration(t *testing.T) {
	store := memengine.NewStore()

	_, errNilStore := NewCoordinator(nil)
	_, errClock := NewCoordinator(store, WithClock(nil))
	_, errIDs := NewCoordinator(store, WithIDGenerator(nil))
	_, errPeriod := NewCoordinator(store, WithDefaultLoanPeriod(0))
	_, errHold := NewCoordinator(store, WithHoldWindow(-time.Second))
	_, errFine := NewCoordinator(store, WithFinePolicy(FinePolicy{RatePerDay: -5}))

	assert.ErrorIs(t, errNilStore, ErrNilStore)
	assert.ErrorIs(t, errClock, ErrNilClock)
	assert.ErrorIs(t, errIDs, ErrNilIDGenerator)
	assert.ErrorIs(t, errPeriod, ErrInvalidLoanPeriod)
	assert.ErrorIs(t, errHold, ErrNegativeHoldWindow)
	assert.ErrorIs(t, errFine, ErrInvalidFinePolicy)
}

func Test_Borrow_Activates_A_Loan_And_Takes_A_Copy(t *testing.T) {
	// setup
	ctx := context.Background()
	clock := NewFakeClock(GivenFixedTime())
	coordinator, store := givenCoordinator(t, WithClock(clock.Now))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 2)
	memberID := GivenUniqueMemberID(t)

	// act
	loan, err := coordinator.Borrow(ctx, bookID, memberID, 0)

	// assert
	require.NoError(t, err)
	assert.Equal(t, LoanActive, loan.Status)
	assert.Equal(t, bookID, loan.BookID)
	assert.Equal(t, memberID, loan.BorrowerID)
	assert.Equal(t, clock.Now(), loan.BorrowedAt)
	assert.Equal(t, clock.Now().Add(DefaultLoanPeriod), loan.DueAt)

	inv, err := coordinator.Inventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.AvailableCopies)
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_Borrow_Uses_Given_LoanPeriod_And_Rejects_Negative_Ones(t *testing.T) {
	// setup
	ctx := context.Background()
	clock := NewFakeClock(GivenFixedTime())
	coordinator, _ := givenCoordinator(t, WithClock(clock.Now))
	bookID := GivenBookWithCopies(t, ctx, coordinator, 2)

	// act
	loan, err := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 3*24*time.Hour)
	_, errNegative := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), -time.Hour)

	// assert
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(3*24*time.Hour), loan.DueAt)
	assert.ErrorIs(t, errNegative, ErrInvalidLoanPeriod)
}

func Test_Borrow_Fails_With_DuplicateLoan_For_The_Same_Borrower(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, store := givenCoordinator(t)

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 3)
	memberID := GivenUniqueMemberID(t)
	_, err := coordinator.Borrow(ctx, bookID, memberID, 0)
	require.NoError(t, err)

	// act
	_, err = coordinator.Borrow(ctx, bookID, memberID, 0)

	// assert
	assert.ErrorIs(t, err, ErrDuplicateLoan)
	inv, _ := coordinator.Inventory(ctx, bookID)
	assert.Equal(t, 2, inv.AvailableCopies, "a rejected borrow must not change the ledger")
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_Borrow_Fails_With_OutOfStock_And_Leaves_No_Loan(t *testing.T) {
	// setup
	ctx := context.Background()
	notifier := testdoubles.NewNotifierSpy()
	coordinator, store := givenCoordinator(t, WithNotifier(notifier))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	memberID := GivenUniqueMemberID(t)

	// act
	_, err := coordinator.Borrow(ctx, bookID, memberID, 0)

	// assert
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.True(t, IsBusinessRejection(err))

	loans, err := coordinator.LoansForMember(ctx, memberID)
	require.NoError(t, err)
	assert.Empty(t, loans, "the requested loan must be discarded")

	types := notifier.EventTypes()
	require.NotEmpty(t, types)
	assert.Equal(t, EventCopyOutOfStock, types[len(types)-1])
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_Borrow_Fails_With_BookNotFound_For_An_Unknown_Book(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, _ := givenCoordinator(t)

	// act
	_, err := coordinator.Borrow(ctx, GivenUniqueBookID(t), GivenUniqueMemberID(t), 0)

	// assert
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func Test_Borrow_Concurrently_Lends_Exactly_The_Available_Copies(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	coordinator, store := givenCoordinator(t)

	// arrange
	const copies = 5
	const borrowers = 50
	bookID := GivenBookWithCopies(t, ctx, coordinator, copies)

	var lent, outOfStock atomic.Int32
	group, groupCtx := errgroup.WithContext(ctx)

	// act
	for i := 0; i < borrowers; i++ {
		memberID := GivenUniqueMemberID(t)

		group.Go(func() error {
			_, err := coordinator.Borrow(groupCtx, bookID, memberID, 0)

			switch {
			case err == nil:
				lent.Add(1)
			case errors.Is(err, ErrOutOfStock):
				outOfStock.Add(1)
			default:
				return err
			}

			return nil
		})
	}

	// assert
	require.NoError(t, group.Wait())
	assert.Equal(t, int32(copies), lent.Load())
	assert.Equal(t, int32(borrowers-copies), outOfStock.Load())

	inv, err := coordinator.Inventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.AvailableCopies)
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_Borrow_Then_Return_Restores_AvailableCopies(t *testing.T) {
	// setup
	ctx := context.Background()
	notifier := testdoubles.NewNotifierSpy()
	coordinator, store := givenCoordinator(t, WithNotifier(notifier))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 3)
	before, err := coordinator.Inventory(ctx, bookID)
	require.NoError(t, err)
	loan := GivenBookWasBorrowed(t, ctx, coordinator, bookID)

	// act
	result, err := coordinator.Return(ctx, loan.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, LoanReturned, result.Returned.Status)
	assert.NotNil(t, result.Returned.ReturnedAt)
	assert.Nil(t, result.Promoted)
	assert.Nil(t, result.Fulfilled)

	after, err := coordinator.Inventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, before.AvailableCopies, after.AvailableCopies)
	assert.Equal(t,
		[]EventType{EventInventoryAdjusted, EventLoanActivated, EventLoanReturned},
		notifier.EventTypes(),
	)
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_Return_Fails_With_NotActive_For_A_Returned_Loan(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, _ := givenCoordinator(t)

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	loan := GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	_, err := coordinator.Return(ctx, loan.ID)
	require.NoError(t, err)

	// act
	_, err = coordinator.Return(ctx, loan.ID)

	// assert
	assert.ErrorIs(t, err, ErrNotActive)
	inv, _ := coordinator.Inventory(ctx, bookID)
	assert.Equal(t, 1, inv.AvailableCopies)
}

func Test_Return_Fails_With_LoanNotFound_For_An_Unknown_Loan(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, _ := givenCoordinator(t)

	// act
	_, err := coordinator.Return(ctx, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, err, ErrLoanNotFound)
}

func Test_Return_Hands_The_Copy_To_The_Head_Of_The_Queue(t *testing.T) {
	// setup
	ctx := context.Background()
	notifier := testdoubles.NewNotifierSpy()
	coordinator, store := givenCoordinator(t, WithNotifier(notifier))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	loan := GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	reservation := GivenMemberIsWaiting(t, ctx, coordinator, bookID)

	// act
	result, err := coordinator.Return(ctx, loan.ID)

	// assert
	require.NoError(t, err)
	require.NotNil(t, result.Promoted)
	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, reservation.ID, result.Fulfilled.ID)
	assert.Equal(t, ReservationFulfilled, result.Fulfilled.Status)
	assert.Equal(t, reservation.MemberID, result.Promoted.BorrowerID)
	assert.Equal(t, LoanActive, result.Promoted.Status)

	inv, err := coordinator.Inventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.AvailableCopies, "the copy must go to the reservation, not to general availability")

	promoted, err := coordinator.Loan(ctx, result.Promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanActive, promoted.Status)

	_, err = coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)
	assert.ErrorIs(t, err, ErrOutOfStock)

	types := notifier.EventTypes()
	assert.Contains(t, types, EventReservationFulfilled)
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_Return_Skips_Expired_Reservations_During_Promotion(t *testing.T) {
	// setup
	ctx := context.Background()
	clock := NewFakeClock(GivenFixedTime())
	coordinator, store := givenCoordinator(t, WithClock(clock.Now), WithHoldWindow(48*time.Hour))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	loan := GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	stale := GivenMemberIsWaiting(t, ctx, coordinator, bookID)
	clock.Advance(24 * time.Hour)
	fresh := GivenMemberIsWaiting(t, ctx, coordinator, bookID)
	clock.Advance(36 * time.Hour)

	// act
	result, err := coordinator.Return(ctx, loan.ID)

	// assert
	require.NoError(t, err)
	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, fresh.ID, result.Fulfilled.ID)

	reservations, err := coordinator.Reservations(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, stale.ID, reservations[0].ID)
	assert.Equal(t, ReservationExpired, reservations[0].Status)
	assert.Equal(t, ReservationFulfilled, reservations[1].Status)

	stored, err := store.Reservation(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationExpired, stored.Status, "the expiry must be persisted by the committing transaction")
}

func Test_Reserve_Borrows_Immediately_When_A_Copy_Is_Free(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, store := givenCoordinator(t)

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 2)
	memberID := GivenUniqueMemberID(t)

	// act
	result, err := coordinator.Reserve(ctx, bookID, memberID)

	// assert
	require.NoError(t, err)
	require.NotNil(t, result.Loan, "a free copy must be lent right away")
	assert.Nil(t, result.Reservation)
	assert.Equal(t, LoanActive, result.Loan.Status)
	assert.Equal(t, memberID, result.Loan.BorrowerID)

	queue, err := coordinator.Queue(ctx, bookID)
	require.NoError(t, err)
	assert.Empty(t, queue)
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_Reserve_Queues_When_No_Copy_Is_Free(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, _ := givenCoordinator(t)

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	first := GivenMemberIsWaiting(t, ctx, coordinator, bookID)

	// act
	result, err := coordinator.Reserve(ctx, bookID, GivenUniqueMemberID(t))

	// assert
	require.NoError(t, err)
	require.NotNil(t, result.Reservation)
	assert.Nil(t, result.Loan)
	assert.Equal(t, first.QueuePosition+1, result.Reservation.QueuePosition)

	queue, err := coordinator.Queue(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first.ID, queue[0].ID)
}

func Test_Reserve_Rejects_AlreadyReserved_And_DuplicateLoan(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, _ := givenCoordinator(t)

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	loan := GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	waiting := GivenMemberIsWaiting(t, ctx, coordinator, bookID)

	// act
	_, errReserved := coordinator.Reserve(ctx, bookID, waiting.MemberID)
	_, errHolder := coordinator.Reserve(ctx, bookID, loan.BorrowerID)

	// assert
	assert.ErrorIs(t, errReserved, ErrAlreadyReserved)
	assert.ErrorIs(t, errHolder, ErrDuplicateLoan)
}

func Test_CancelReservation_Keeps_The_Remaining_Positions(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, _ := givenCoordinator(t)

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	loan := GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	first := GivenMemberIsWaiting(t, ctx, coordinator, bookID)
	second := GivenMemberIsWaiting(t, ctx, coordinator, bookID)

	// act
	cancelled, err := coordinator.CancelReservation(ctx, first.ID)
	_, errAgain := coordinator.CancelReservation(ctx, first.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, ReservationCancelled, cancelled.Status)
	assert.ErrorIs(t, errAgain, ErrReservationNotWaiting)

	queue, err := coordinator.Queue(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, second.ID, queue[0].ID)
	assert.Equal(t, second.QueuePosition, queue[0].QueuePosition)

	result, err := coordinator.Return(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, second.ID, result.Fulfilled.ID)
}

func Test_CancelReservation_Fails_For_An_Unknown_Reservation(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, _ := givenCoordinator(t)

	// act
	_, err := coordinator.CancelReservation(ctx, GivenUniqueID(t))

	// assert
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func Test_AdjustInventory_Promotes_Waiting_Reservations_For_Added_Copies(t *testing.T) {
	// setup
	ctx := context.Background()
	coordinator, store := givenCoordinator(t)

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	first := GivenMemberIsWaiting(t, ctx, coordinator, bookID)
	second := GivenMemberIsWaiting(t, ctx, coordinator, bookID)

	// act
	inv, err := coordinator.AdjustInventory(ctx, bookID, 4)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 4, inv.TotalCopies)
	assert.Equal(t, 1, inv.AvailableCopies)

	for _, r := range []Reservation{first, second} {
		loans, loansErr := coordinator.LoansForMember(ctx, r.MemberID)
		require.NoError(t, loansErr)
		require.Len(t, loans, 1)
		assert.Equal(t, LoanActive, loans[0].Status)
	}

	queue, err := coordinator.Queue(ctx, bookID)
	require.NoError(t, err)
	assert.Empty(t, queue)
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_AdjustInventory_Below_LentCopies_Records_A_Shortfall(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := testdoubles.NewLogHandlerSpy(false)
	coordinator, store := givenCoordinator(t, WithLogger(slogLogger(logHandler)))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 3)
	first := GivenBookWasBorrowed(t, ctx, coordinator, bookID)
	GivenBookWasBorrowed(t, ctx, coordinator, bookID)

	// act
	inv, err := coordinator.AdjustInventory(ctx, bookID, 1)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, inv.TotalCopies)
	assert.Equal(t, 0, inv.AvailableCopies)
	assert.Equal(t, 1, inv.Shortfall)
	assert.True(t, logHandler.HasWarnLogWithMessage(
		"total copies reduced below lent copies, shortfall recorded").Assert())
	assertLedgerIsConsistent(t, ctx, store, bookID)

	_, err = coordinator.Return(ctx, first.ID)
	require.NoError(t, err)
	inv, err = coordinator.Inventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Shortfall)
	assert.Equal(t, 0, inv.AvailableCopies, "the return pays down the shortfall")
	assertLedgerIsConsistent(t, ctx, store, bookID)
}

func Test_AdjustInventory_Validates_Through_The_Catalog(t *testing.T) {
	// setup
	ctx := context.Background()
	catalog := memengine.NewCatalog(CatalogEntry{BookID: "known", Title: "Learning Domain-Driven Design", TotalCopies: 2})
	coordinator, _ := givenCoordinator(t, WithCatalog(catalog))

	// act
	_, errUnknown := coordinator.AdjustInventory(ctx, "unknown", 2)
	_, errNegative := coordinator.AdjustInventory(ctx, "known", -1)
	inv, err := coordinator.AdjustInventory(ctx, "known", 2)

	// assert
	assert.ErrorIs(t, errUnknown, ErrBookNotFound)
	assert.ErrorIs(t, errNegative, ErrInvalidCopyCount)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.AvailableCopies)

	book, err := coordinator.Book(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, "Learning Domain-Driven Design", book.Catalog.Title)
	assert.Equal(t, 2, book.Inventory.TotalCopies)
}

// unavailableStore fails every write with err.
type unavailableStore struct {
	*memengine.Store
	err error
}

func (s unavailableStore) Transact(context.Context, BookID, TransactFunc) error {
	return s.err
}

func (s unavailableStore) TransactOrCreate(context.Context, BookID, TransactFunc) error {
	return s.err
}

func Test_AdjustInventory_Leaves_No_Ledger_Row_When_The_Store_Fails(t *testing.T) {
	// setup
	ctx := context.Background()
	storeErr := errors.New("persistence unavailable")
	store := unavailableStore{Store: memengine.NewStore(), err: storeErr}
	coordinator, err := NewCoordinator(store)
	require.NoError(t, err)
	bookID := GivenUniqueBookID(t)

	// act
	_, err = coordinator.AdjustInventory(ctx, bookID, 3)

	// assert
	assert.ErrorIs(t, err, storeErr)

	_, err = store.Inventory(ctx, bookID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Empty(t, store.Books())
}

func Test_Borrow_Fails_With_BookNotFound_After_A_Failed_Creation(t *testing.T) {
	// setup
	ctx := context.Background()
	decideErr := errors.New("decision failed")
	coordinator, store := givenCoordinator(t)
	bookID := GivenUniqueBookID(t)

	// arrange
	err := store.TransactOrCreate(ctx, bookID, func(state BookState) (Changes, error) {
		inv := state.Inventory
		inv.TotalCopies = 1
		inv.AvailableCopies = 1

		return Changes{Inventory: &inv}, decideErr
	})
	require.ErrorIs(t, err, decideErr)

	// act
	_, borrowErr := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)
	_, inventoryErr := coordinator.Inventory(ctx, bookID)

	// assert
	assert.ErrorIs(t, borrowErr, ErrBookNotFound)
	assert.ErrorIs(t, inventoryErr, ErrBookNotFound)
}

func Test_Loan_Reads_As_Overdue_After_DueAt(t *testing.T) {
	// setup
	ctx := context.Background()
	clock := NewFakeClock(GivenFixedTime())
	coordinator, store := givenCoordinator(t,
		WithClock(clock.Now),
		WithFinePolicy(FinePolicy{RatePerDay: 25, Ceiling: 1000}))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	loan, err := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 24*time.Hour)
	require.NoError(t, err)
	clock.Advance(3 * 24 * time.Hour)

	// act
	read, err := coordinator.Loan(ctx, loan.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, LoanOverdue, read.Status)
	assert.Nil(t, read.ReturnedAt)

	stored, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanActive, stored.Status, "overdue is never stored")

	fine, err := coordinator.Fine(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fine.DaysOverdue)
	assert.Equal(t, int64(50), fine.Amount)

	result, err := coordinator.Return(ctx, loan.ID)
	require.NoError(t, err, "an overdue loan can be returned")
	assert.Equal(t, LoanReturned, result.Returned.Status)
}

func Test_Coordinator_Ignores_Notification_Failures(t *testing.T) {
	// setup
	ctx := context.Background()
	notifier := testdoubles.NewNotifierSpy()
	notifier.Err = errors.New("broker unavailable")
	logHandler := testdoubles.NewLogHandlerSpy(false)
	coordinator, _ := givenCoordinator(t, WithNotifier(notifier), WithLogger(slogLogger(logHandler)))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)

	// act
	_, err := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)

	// assert
	assert.NoError(t, err)
	assert.True(t, logHandler.HasWarnLogWithMessage("failed to deliver circulation event").Assert())
}

func Test_Coordinator_Surfaces_InventoryCorruption(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memengine.NewStore()
	metrics := testdoubles.NewMetricsCollectorSpy()
	coordinator, err := NewCoordinator(store, WithMetrics(metrics))
	require.NoError(t, err)

	// arrange
	bookID := GivenUniqueBookID(t)
	require.NoError(t, store.CreateBook(ctx, bookID))
	err = store.Transact(ctx, bookID, func(state BookState) (Changes, error) {
		broken := state.Inventory
		broken.TotalCopies = 2
		broken.AvailableCopies = 1

		return Changes{Inventory: &broken}, nil
	})
	require.NoError(t, err)

	// act
	_, err = coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)

	// assert
	assert.ErrorIs(t, err, ErrInventoryCorruption)
	assert.False(t, IsBusinessRejection(err))
	assert.Equal(t, 1, metrics.CountCounterRecordsForMetric(MetricInvariantViolations))

	inv, err := store.Inventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.AvailableCopies, "nothing is written after corruption was detected")
}

func Test_Coordinator_Propagates_IDGenerator_Failures(t *testing.T) {
	// setup
	ctx := context.Background()
	idErr := errors.New("entropy exhausted")
	calls := 0
	coordinator, store := givenCoordinator(t, WithIDGenerator(func() (uuid.UUID, error) {
		calls++
		return uuid.Nil, idErr
	}))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)

	// act
	_, err := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)

	// assert
	assert.ErrorIs(t, err, idErr)
	assert.Equal(t, 1, calls)
	assertLedgerIsConsistent(t, ctx, store, bookID)
}
