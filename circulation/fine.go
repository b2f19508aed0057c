package circulation

import (
	"time"
)

const day = 24 * time.Hour

// FinePolicy configures fine accrual. Amounts are integer minor currency units (cents).
// A zero Ceiling means no cap.
type FinePolicy struct {
	RatePerDay int64
	Ceiling    int64
}

// Validate checks that the policy has no negative values.
func (p FinePolicy) Validate() error {
	if p.RatePerDay < 0 || p.Ceiling < 0 {
		return ErrInvalidFinePolicy
	}

	return nil
}

// Fine is derived from a loan on every read, it is never stored.
type Fine struct {
	LoanID      LoanID
	RatePerDay  int64
	AccruesFrom time.Time
	DaysOverdue int64
	Amount      int64
	Capped      bool
}

// FineFor computes the fine of a loan at the given time.
//
// Every started day after DueAt counts. For a returned loan the clock stops at ReturnedAt,
// so a late return keeps its fine while an on-time one has none.
func FineFor(loan Loan, policy FinePolicy, now time.Time) Fine {
	fine := Fine{
		LoanID:      loan.ID,
		RatePerDay:  policy.RatePerDay,
		AccruesFrom: loan.DueAt,
	}

	if loan.Status == LoanRequested || loan.DueAt.IsZero() {
		return fine
	}

	until := now
	if loan.ReturnedAt != nil {
		until = *loan.ReturnedAt
	}

	late := until.Sub(loan.DueAt)
	if late <= 0 {
		return fine
	}

	fine.DaysOverdue = int64((late + day - 1) / day)
	fine.Amount = fine.DaysOverdue * policy.RatePerDay

	if policy.Ceiling > 0 && fine.Amount > policy.Ceiling {
		fine.Amount = policy.Ceiling
		fine.Capped = true
	}

	return fine
}
