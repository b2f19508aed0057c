package circulation

import (
	"time"
)

// Enqueue appends a waiting reservation for memberID to the book's queue.
//
// The queue position is taken from the inventory's reservation sequence, so positions
// per book are strictly increasing and gapless in creation order. Cancelled or expired
// positions are never reused.
func Enqueue(state BookState, id ReservationID, memberID MemberID, now time.Time) (BookState, Reservation, error) {
	if state.HasWaitingReservation(memberID) {
		return state, Reservation{}, ErrAlreadyReserved
	}

	if state.HasOpenLoan(memberID) {
		return state, Reservation{}, ErrDuplicateLoan
	}

	state.Inventory.ReservationSeq++

	r := Reservation{
		ID:            id,
		BookID:        state.Inventory.BookID,
		MemberID:      memberID,
		QueuePosition: state.Inventory.ReservationSeq,
		CreatedAt:     ToTimestamp(now),
		Status:        ReservationWaiting,
	}

	state.Waiting = append(cloneReservations(state.Waiting), r)

	return state, r, nil
}

// Cancel withdraws a waiting reservation. Remaining positions are not renumbered.
func (r Reservation) Cancel(now time.Time) (Reservation, error) {
	return r.resolve(ReservationCancelled, now)
}

func (r Reservation) fulfill(now time.Time) (Reservation, error) {
	return r.resolve(ReservationFulfilled, now)
}

func (r Reservation) expire(at time.Time) (Reservation, error) {
	return r.resolve(ReservationExpired, at)
}

func (r Reservation) resolve(status ReservationStatus, at time.Time) (Reservation, error) {
	if r.Status != ReservationWaiting {
		return r, ErrReservationNotWaiting
	}

	r.Status = status
	r.ResolvedAt = timePtr(ToTimestamp(at))

	return r, nil
}

// ExpiresAt returns when a waiting reservation lapses for the given hold window.
// A zero hold window never lapses.
func (r Reservation) ExpiresAt(holdWindow time.Duration) (time.Time, bool) {
	if holdWindow <= 0 {
		return time.Time{}, false
	}

	return r.CreatedAt.Add(holdWindow), true
}

// StatusAt reads the reservation status at the given time with lazy expiry applied.
func (r Reservation) StatusAt(now time.Time, holdWindow time.Duration) ReservationStatus {
	if r.Status != ReservationWaiting {
		return r.Status
	}

	if expiresAt, ok := r.ExpiresAt(holdWindow); ok && now.After(expiresAt) {
		return ReservationExpired
	}

	return r.Status
}

// AsOf returns a copy of the reservation with Status replaced by StatusAt(now, holdWindow).
func (r Reservation) AsOf(now time.Time, holdWindow time.Duration) Reservation {
	status := r.StatusAt(now, holdWindow)
	if status == ReservationExpired && r.ResolvedAt == nil {
		expiresAt, _ := r.ExpiresAt(holdWindow)
		r.ResolvedAt = timePtr(ToTimestamp(expiresAt))
	}

	r.Status = status

	return r
}

// ExpireStale moves every waiting reservation past its hold window to expired.
// It returns the queue that is still waiting and the reservations that just expired.
func ExpireStale(waiting []Reservation, now time.Time, holdWindow time.Duration) ([]Reservation, []Reservation) {
	if holdWindow <= 0 {
		return waiting, nil
	}

	remaining := make([]Reservation, 0, len(waiting))
	var expired []Reservation

	for _, r := range waiting {
		if r.StatusAt(now, holdWindow) != ReservationExpired {
			remaining = append(remaining, r)
			continue
		}

		expiresAt, _ := r.ExpiresAt(holdWindow)
		lapsed, err := r.expire(expiresAt)
		if err != nil {
			remaining = append(remaining, r)
			continue
		}

		expired = append(expired, lapsed)
	}

	return remaining, expired
}

// Promotion is the outcome of PromoteNext.
type Promotion struct {
	// Fulfilled is the head of the queue that receives the freed copy, nil if no one is eligible.
	Fulfilled *Reservation

	// Skipped holds reservations resolved on the way to the head, expired or cancelled.
	Skipped []Reservation

	// Waiting is the queue that is left.
	Waiting []Reservation
}

// PromoteNext picks the lowest-position waiting reservation and marks it fulfilled.
//
// Reservations past the hold window expire and are skipped. Reservations whose member
// meanwhile holds an open loan for the book are cancelled and skipped, because that member
// cannot receive a second copy.
func PromoteNext(state BookState, now time.Time, holdWindow time.Duration) Promotion {
	var p Promotion

	for i, r := range state.Waiting {
		if r.Status != ReservationWaiting {
			continue
		}

		if r.StatusAt(now, holdWindow) == ReservationExpired {
			expiresAt, _ := r.ExpiresAt(holdWindow)
			lapsed, _ := r.expire(expiresAt)
			p.Skipped = append(p.Skipped, lapsed)
			continue
		}

		if state.HasOpenLoan(r.MemberID) {
			cancelled, _ := r.Cancel(now)
			p.Skipped = append(p.Skipped, cancelled)
			continue
		}

		fulfilled, _ := r.fulfill(now)
		p.Fulfilled = &fulfilled
		p.Waiting = cloneReservations(state.Waiting[i+1:])

		return p
	}

	p.Waiting = []Reservation{}

	return p
}

func cloneReservations(in []Reservation) []Reservation {
	out := make([]Reservation, len(in))
	copy(out, in)

	return out
}
