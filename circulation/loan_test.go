package circulation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/library-circulation-go/circulation"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/helper"
)

func Test_Loan_Activate_Sets_BorrowedAt_And_DueAt(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	loan := NewRequestedLoan(GivenUniqueID(t), "b1", "m1", now)

	// act
	active, err := loan.Activate(now, 7*24*time.Hour)

	// assert
	require.NoError(t, err)
	assert.Equal(t, LoanActive, active.Status)
	assert.Equal(t, now, active.BorrowedAt)
	assert.Equal(t, now.Add(7*24*time.Hour), active.DueAt)
	assert.Nil(t, active.ReturnedAt)
	assert.True(t, active.IsOpen())
}

func Test_Loan_Activate_Rejects_NonPositivePeriod(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	loan := NewRequestedLoan(GivenUniqueID(t), "b1", "m1", now)

	// act
	_, errZero := loan.Activate(now, 0)
	_, errNegative := loan.Activate(now, -time.Hour)

	// assert
	assert.ErrorIs(t, errZero, ErrInvalidLoanPeriod)
	assert.ErrorIs(t, errNegative, ErrInvalidLoanPeriod)
}

func Test_Loan_Return_Closes_The_Loan_Once(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	active, err := NewRequestedLoan(GivenUniqueID(t), "b1", "m1", now).Activate(now, time.Hour)
	require.NoError(t, err)

	// act
	returned, err := active.Return(now.Add(time.Minute))
	_, errAgain := returned.Return(now.Add(2 * time.Minute))

	// assert
	require.NoError(t, err)
	assert.Equal(t, LoanReturned, returned.Status)
	require.NotNil(t, returned.ReturnedAt)
	assert.Equal(t, now.Add(time.Minute), *returned.ReturnedAt)
	assert.False(t, returned.IsOpen())
	assert.ErrorIs(t, errAgain, ErrNotActive)
}

func Test_Loan_Return_Rejects_RequestedLoan(t *testing.T) {
	// arrange
	loan := NewRequestedLoan(GivenUniqueID(t), "b1", "m1", GivenFixedTime())

	// act
	_, err := loan.Return(GivenFixedTime())

	// assert
	assert.ErrorIs(t, err, ErrNotActive)
}

func Test_Loan_StatusAt_Reports_Overdue_Without_StoredTransition(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	active, err := NewRequestedLoan(GivenUniqueID(t), "b1", "m1", now).Activate(now, time.Hour)
	require.NoError(t, err)

	// act
	atDue := active.StatusAt(now.Add(time.Hour))
	afterDue := active.StatusAt(now.Add(time.Hour + time.Microsecond))
	asOf := active.AsOf(now.Add(2 * time.Hour))

	// assert
	assert.Equal(t, LoanActive, atDue)
	assert.Equal(t, LoanOverdue, afterDue)
	assert.Equal(t, LoanOverdue, asOf.Status)
	assert.Equal(t, LoanActive, active.Status, "the stored status must not change")
}

func Test_Loan_StatusAt_Never_Reports_ReturnedLoan_As_Overdue(t *testing.T) {
	// arrange
	now := GivenFixedTime()
	active, err := NewRequestedLoan(GivenUniqueID(t), "b1", "m1", now).Activate(now, time.Hour)
	require.NoError(t, err)
	returned, err := active.Return(now.Add(3 * time.Hour))
	require.NoError(t, err)

	// act
	status := returned.StatusAt(now.Add(24 * time.Hour))

	// assert
	assert.Equal(t, LoanReturned, status)
}
