package postgresengine_test

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	. "github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
)

func Test_MapConstraintViolation(t *testing.T) {
	plainErr := errors.New("connection reset")

	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "pgx open loan violation",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "loans_open_book_borrower_key"},
			expected: circulation.ErrDuplicateLoan,
		},
		{
			name:     "pgx waiting reservation violation",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "reservations_waiting_book_member_key"},
			expected: circulation.ErrAlreadyReserved,
		},
		{
			name:     "lib/pq open loan violation",
			err:      &pq.Error{Code: "23505", Constraint: "loans_open_book_borrower_key"},
			expected: circulation.ErrDuplicateLoan,
		},
		{
			name:     "lib/pq waiting reservation violation",
			err:      &pq.Error{Code: "23505", Constraint: "reservations_waiting_book_member_key"},
			expected: circulation.ErrAlreadyReserved,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			mapped := MapConstraintViolation(tc.err)

			// assert
			assert.ErrorIs(t, mapped, tc.expected)
			assert.ErrorIs(t, mapped, tc.err, "the driver error stays in the chain")
		})
	}

	t.Run("other errors are returned unchanged", func(t *testing.T) {
		checkViolation := &pgconn.PgError{Code: "23514", ConstraintName: "book_inventory_available_check"}
		otherUnique := &pq.Error{Code: "23505", Constraint: "reservations_book_position_key"}

		assert.Same(t, plainErr, MapConstraintViolation(plainErr))
		assert.Equal(t, error(checkViolation), MapConstraintViolation(checkViolation))
		assert.Equal(t, error(otherUnique), MapConstraintViolation(otherUnique))
		assert.False(t, circulation.IsBusinessRejection(MapConstraintViolation(otherUnique)))
	})
}
