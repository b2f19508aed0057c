package circulation

import (
	"errors"
	"fmt"
)

// ReserveCopy takes one copy out of the available pool.
// It fails with ErrOutOfStock if no copy is available.
func ReserveCopy(inv BookInventory) (BookInventory, error) {
	if inv.AvailableCopies <= 0 {
		return inv, ErrOutOfStock
	}

	inv.AvailableCopies--

	return inv, nil
}

// ReleaseCopy puts one lent copy back.
//
// While a shortfall is recorded, the copy pays it down instead of becoming available.
// It fails with ErrInventoryCorruption if the release would push AvailableCopies above TotalCopies,
// which means some earlier write lost track of a copy.
func ReleaseCopy(inv BookInventory) (BookInventory, error) {
	if inv.Shortfall > 0 {
		inv.Shortfall--
		return inv, nil
	}

	if inv.AvailableCopies+1 > inv.TotalCopies {
		return inv, errors.Join(
			ErrInventoryCorruption,
			fmt.Errorf("release of book %q would exceed total copies (%d available of %d)",
				inv.BookID, inv.AvailableCopies, inv.TotalCopies),
		)
	}

	inv.AvailableCopies++

	return inv, nil
}

// SetTotalCopies resizes the title to n copies and moves AvailableCopies by the same delta.
//
// AvailableCopies never goes negative: if n is below the number of copies currently lent out,
// it floors at 0 and the missing copies are returned as shortfall (and recorded on the inventory).
func SetTotalCopies(inv BookInventory, n int) (BookInventory, int, error) {
	if n < 0 {
		return inv, 0, ErrInvalidCopyCount
	}

	lent := inv.LentCopies()
	available := n - lent
	shortfall := 0

	if available < 0 {
		shortfall = -available
		available = 0
	}

	inv.TotalCopies = n
	inv.AvailableCopies = available
	inv.Shortfall = shortfall

	return inv, shortfall, nil
}

// CheckInvariants verifies the counters against themselves and against the number of open loans.
func CheckInvariants(inv BookInventory, openLoans int) error {
	if inv.AvailableCopies < 0 || inv.AvailableCopies > inv.TotalCopies || inv.Shortfall < 0 {
		return errors.Join(
			ErrInventoryCorruption,
			fmt.Errorf("book %q has %d available of %d total copies (shortfall %d)",
				inv.BookID, inv.AvailableCopies, inv.TotalCopies, inv.Shortfall),
		)
	}

	if inv.LentCopies() != openLoans {
		return errors.Join(
			ErrInventoryCorruption,
			fmt.Errorf("book %q counts %d lent copies but has %d open loans",
				inv.BookID, inv.LentCopies(), openLoans),
		)
	}

	return nil
}
