package memengine

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Store is an in-process circulation.Store.
//
// Every book has its own weighted semaphore of size one as serialization token. Waiting for it
// honors context cancellation; once acquired, the decision and the commit always run to the end.
// Commits replace the touched records under a store-wide lock, so readers never see half a transaction.
type Store struct {
	mu           sync.RWMutex
	tokens       map[circulation.BookID]*semaphore.Weighted
	inventories  map[circulation.BookID]circulation.BookInventory
	loans        map[circulation.LoanID]circulation.Loan
	reservations map[circulation.ReservationID]circulation.Reservation
	bookLoans    map[circulation.BookID][]circulation.LoanID
	memberLoans  map[circulation.MemberID][]circulation.LoanID
	bookQueue    map[circulation.BookID][]circulation.ReservationID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tokens:       make(map[circulation.BookID]*semaphore.Weighted),
		inventories:  make(map[circulation.BookID]circulation.BookInventory),
		loans:        make(map[circulation.LoanID]circulation.Loan),
		reservations: make(map[circulation.ReservationID]circulation.Reservation),
		bookLoans:    make(map[circulation.BookID][]circulation.LoanID),
		memberLoans:  make(map[circulation.MemberID][]circulation.LoanID),
		bookQueue:    make(map[circulation.BookID][]circulation.ReservationID),
	}
}

// CreateBook creates an empty ledger entry for the book if it does not exist.
func (s *Store) CreateBook(ctx context.Context, bookID circulation.BookID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inventories[bookID]; ok {
		return nil
	}

	s.inventories[bookID] = circulation.BookInventory{BookID: bookID}

	if _, ok := s.tokens[bookID]; !ok {
		s.tokens[bookID] = semaphore.NewWeighted(1)
	}

	return nil
}

// Transact runs fn on the loaded state of the book while holding its token and commits the returned changes.
func (s *Store) Transact(ctx context.Context, bookID circulation.BookID, fn circulation.TransactFunc) error {
	return s.transact(ctx, bookID, false, fn)
}

// TransactOrCreate is Transact for a book without a ledger entry yet. The entry is only stored
// together with the changes of fn.
func (s *Store) TransactOrCreate(ctx context.Context, bookID circulation.BookID, fn circulation.TransactFunc) error {
	return s.transact(ctx, bookID, true, fn)
}

func (s *Store) transact(
	ctx context.Context,
	bookID circulation.BookID,
	create bool,
	fn circulation.TransactFunc,
) error {

	token, ok := s.token(bookID, create)
	if !ok {
		return circulation.ErrBookNotFound
	}

	if err := token.Acquire(ctx, 1); err != nil {
		return err
	}
	defer token.Release(1)

	state, exists := s.load(bookID)
	if !exists && !create {
		return circulation.ErrBookNotFound
	}

	changes, err := fn(state)
	if err != nil {
		return err
	}

	if !exists && changes.Inventory == nil {
		changes.Inventory = &state.Inventory
	}

	if changes.IsEmpty() {
		return nil
	}

	s.commit(bookID, changes)

	return nil
}

// token returns the serialization token of the book. With create, a missing token is added;
// a token alone does not make the book exist.
func (s *Store) token(bookID circulation.BookID, create bool) (*semaphore.Weighted, bool) {
	s.mu.RLock()
	token, ok := s.tokens[bookID]
	s.mu.RUnlock()

	if ok || !create {
		return token, ok
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok = s.tokens[bookID]; !ok {
		token = semaphore.NewWeighted(1)
		s.tokens[bookID] = token
	}

	return token, true
}

func (s *Store) load(bookID circulation.BookID) (circulation.BookState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.inventories[bookID]
	if !exists {
		inv = circulation.BookInventory{BookID: bookID}
	}

	state := circulation.BookState{
		Inventory: inv,
		OpenLoans: make([]circulation.Loan, 0),
		Waiting:   make([]circulation.Reservation, 0),
	}

	for _, id := range s.bookLoans[bookID] {
		if loan := s.loans[id]; loan.IsOpen() {
			state.OpenLoans = append(state.OpenLoans, loan)
		}
	}

	for _, id := range s.bookQueue[bookID] {
		if r := s.reservations[id]; r.Status == circulation.ReservationWaiting {
			state.Waiting = append(state.Waiting, r)
		}
	}

	return state, exists
}

func (s *Store) commit(bookID circulation.BookID, changes circulation.Changes) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if changes.Inventory != nil {
		s.inventories[bookID] = *changes.Inventory
	}

	for _, loan := range changes.Loans {
		if _, exists := s.loans[loan.ID]; !exists {
			s.bookLoans[bookID] = append(s.bookLoans[bookID], loan.ID)
			s.memberLoans[loan.BorrowerID] = append(s.memberLoans[loan.BorrowerID], loan.ID)
		}

		s.loans[loan.ID] = loan
	}

	for _, r := range changes.Reservations {
		if _, exists := s.reservations[r.ID]; !exists {
			s.bookQueue[bookID] = append(s.bookQueue[bookID], r.ID)
		}

		s.reservations[r.ID] = r
	}
}

// Inventory returns the ledger counters of the book.
func (s *Store) Inventory(ctx context.Context, bookID circulation.BookID) (circulation.BookInventory, error) {
	if err := ctx.Err(); err != nil {
		return circulation.BookInventory{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.inventories[bookID]
	if !ok {
		return circulation.BookInventory{}, circulation.ErrBookNotFound
	}

	return inv, nil
}

// Loan returns the stored loan.
func (s *Store) Loan(ctx context.Context, loanID circulation.LoanID) (circulation.Loan, error) {
	if err := ctx.Err(); err != nil {
		return circulation.Loan{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[loanID]
	if !ok {
		return circulation.Loan{}, circulation.ErrLoanNotFound
	}

	return loan, nil
}

// LoansForMember returns all loans of the member in creation order.
func (s *Store) LoansForMember(ctx context.Context, memberID circulation.MemberID) ([]circulation.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.memberLoans[memberID]
	loans := make([]circulation.Loan, 0, len(ids))

	for _, id := range ids {
		loans = append(loans, s.loans[id])
	}

	return loans, nil
}

// Reservation returns the stored reservation.
func (s *Store) Reservation(
	ctx context.Context,
	reservationID circulation.ReservationID,
) (circulation.Reservation, error) {

	if err := ctx.Err(); err != nil {
		return circulation.Reservation{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[reservationID]
	if !ok {
		return circulation.Reservation{}, circulation.ErrReservationNotFound
	}

	return r, nil
}

// Reservations returns all reservations of the book ordered by queue position.
func (s *Store) Reservations(ctx context.Context, bookID circulation.BookID) ([]circulation.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bookQueue[bookID]
	reservations := make([]circulation.Reservation, 0, len(ids))

	for _, id := range ids {
		reservations = append(reservations, s.reservations[id])
	}

	slices.SortFunc(reservations, func(a, b circulation.Reservation) int {
		return cmp.Compare(a.QueuePosition, b.QueuePosition)
	})

	return reservations, nil
}

// Books returns the ids of all books with a ledger entry, sorted.
func (s *Store) Books() []circulation.BookID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.inventories))
}
