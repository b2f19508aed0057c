package main

import (
	"fmt"
	"io"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const timeLayout = time.DateTime

func printInventory(out io.Writer, inv circulation.BookInventory) {
	fmt.Fprintf(out, "book %s: %d of %d copies available", inv.BookID, inv.AvailableCopies, inv.TotalCopies)

	if inv.Shortfall > 0 {
		fmt.Fprintf(out, ", %d copies missing", inv.Shortfall)
	}

	fmt.Fprintln(out)
}

func printBook(out io.Writer, book circulation.Book) {
	if book.Catalog.Title != "" {
		fmt.Fprintf(out, "%q\n", book.Catalog.Title)
	}

	printInventory(out, book.Inventory)
}

func printLoan(out io.Writer, loan circulation.Loan) {
	fmt.Fprintf(out, "loan %s: book %s, borrower %s, %s, due %s",
		loan.ID, loan.BookID, loan.BorrowerID, loan.Status, loan.DueAt.Local().Format(timeLayout))

	if loan.ReturnedAt != nil {
		fmt.Fprintf(out, ", returned %s", loan.ReturnedAt.Local().Format(timeLayout))
	}

	fmt.Fprintln(out)
}

func printReservation(out io.Writer, r circulation.Reservation) {
	fmt.Fprintf(out, "reservation %s: book %s, member %s, position %d, %s\n",
		r.ID, r.BookID, r.MemberID, r.QueuePosition, r.Status)
}

func printFine(out io.Writer, fine circulation.Fine) {
	if fine.DaysOverdue == 0 {
		fmt.Fprintln(out, "no fine")
		return
	}

	fmt.Fprintf(out, "fine: %d days overdue, %d.%02d", fine.DaysOverdue, fine.Amount/100, fine.Amount%100)

	if fine.Capped {
		fmt.Fprint(out, " (capped)")
	}

	fmt.Fprintln(out)
}
