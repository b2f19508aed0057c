package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/config"
	"github.com/AntonStoeckl/library-circulation-go/migrations"
)

func newRootCommand(deps dependencies) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "circulation",
		Short:         "Lend, return and reserve library books",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.member, "member", "", "member id to act for (default $CIRCULATION_MEMBER_ID)")
	root.PersistentFlags().BoolVar(&flags.events, "events", false, "write circulation events as JSON lines to stdout")
	root.PersistentFlags().BoolVar(&flags.otel, "otel", false, "export traces, metrics and logs via OTLP/gRPC")
	root.PersistentFlags().BoolVar(&flags.eventual, "eventual", false, "allow reads from the replica")

	root.AddCommand(
		newMigrateCommand(deps),
		newCatalogCommand(deps, flags),
		newAdjustCommand(deps, flags),
		newBorrowCommand(deps, flags),
		newReturnCommand(deps, flags),
		newReserveCommand(deps, flags),
		newCancelReservationCommand(deps, flags),
		newLoanCommand(deps, flags),
		newBookCommand(deps, flags),
		newLoansCommand(deps, flags),
		newSimulateCommand(deps, flags),
	)

	return root
}

// runWithApp builds the app for the command and closes it when fn returns.
func runWithApp(deps dependencies, flags *globalFlags, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), deps, flags, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.close()

		return fn(cmd, a, args)
	}
}

func newMigrateCommand(deps dependencies) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|reset|version]",
		Short:     "Apply or inspect the Postgres schema migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status", "reset", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.loadConfig()
			if err != nil {
				return err
			}

			if cfg.Store != config.StorePostgres {
				return errRequiresPostgres
			}

			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			db, err := config.OpenSQLDB(cmd.Context(), cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err = migrations.Run(cmd.Context(), db, command); err != nil {
				return err
			}

			version, err := migrations.Version(cmd.Context(), db)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)

			return nil
		},
	}
}

func newCatalogCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the book catalog",
	}

	var copies int

	add := &cobra.Command{
		Use:   "add <book-id> <title>",
		Short: "Add or update a catalog entry",
		Args:  cobra.ExactArgs(2),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			if a.catalog == nil {
				return errRequiresPostgres
			}

			entry := circulation.CatalogEntry{BookID: args[0], Title: args[1], TotalCopies: copies}
			if err := a.catalog.Put(cmd.Context(), entry); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "catalog entry %s %q with %d copies\n", entry.BookID, entry.Title, entry.TotalCopies)

			return nil
		}),
	}

	add.Flags().IntVar(&copies, "copies", 1, "number of copies the library owns")
	catalog.AddCommand(add, newCatalogImportCommand(deps, flags))

	return catalog
}

func newAdjustCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "adjust <book-id> <total-copies>",
		Short: "Set the total number of copies of a book",
		Args:  cobra.ExactArgs(2),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			total, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: %s", circulation.ErrInvalidCopyCount, args[1])
			}

			inv, err := a.coordinator.AdjustInventory(cmd.Context(), args[0], total)
			if err != nil {
				return err
			}

			printInventory(cmd.OutOrStdout(), inv)

			return nil
		}),
	}
}

func newBorrowCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	var period time.Duration

	borrow := &cobra.Command{
		Use:   "borrow <book-id>",
		Short: "Borrow a copy of a book",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			memberID, err := a.identity.AuthenticatedMember(cmd.Context())
			if err != nil {
				return err
			}

			loan, err := a.coordinator.Borrow(cmd.Context(), args[0], memberID, period)
			if err != nil {
				return err
			}

			printLoan(cmd.OutOrStdout(), loan)

			return nil
		}),
	}

	borrow.Flags().DurationVar(&period, "period", 0, "loan period (default $CIRCULATION_LOAN_PERIOD)")

	return borrow
}

func newReturnCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Return a borrowed copy",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			loanID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", circulation.ErrLoanNotFound, args[0])
			}

			result, err := a.coordinator.Return(cmd.Context(), loanID)
			if err != nil {
				return err
			}

			printLoan(cmd.OutOrStdout(), result.Returned)

			if result.Promoted != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "copy passed to %s\n", result.Promoted.BorrowerID)
				printLoan(cmd.OutOrStdout(), *result.Promoted)
			}

			return nil
		}),
	}
}

func newReserveCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <book-id>",
		Short: "Reserve a book, or borrow it right away if a copy is free",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			memberID, err := a.identity.AuthenticatedMember(cmd.Context())
			if err != nil {
				return err
			}

			result, err := a.coordinator.Reserve(cmd.Context(), args[0], memberID)
			if err != nil {
				return err
			}

			if result.Loan != nil {
				printLoan(cmd.OutOrStdout(), *result.Loan)
				return nil
			}

			printReservation(cmd.OutOrStdout(), *result.Reservation)

			return nil
		}),
	}
}

func newCancelReservationCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-reservation <reservation-id>",
		Short: "Cancel a waiting reservation",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			reservationID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", circulation.ErrReservationNotFound, args[0])
			}

			r, err := a.coordinator.CancelReservation(cmd.Context(), reservationID)
			if err != nil {
				return err
			}

			printReservation(cmd.OutOrStdout(), r)

			return nil
		}),
	}
}

func newLoanCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "loan <loan-id>",
		Short: "Show a loan and its fine",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			loanID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", circulation.ErrLoanNotFound, args[0])
			}

			ctx := a.readContext(cmd.Context())

			loan, err := a.coordinator.Loan(ctx, loanID)
			if err != nil {
				return err
			}

			fine, err := a.coordinator.Fine(ctx, loanID)
			if err != nil {
				return err
			}

			printLoan(cmd.OutOrStdout(), loan)
			printFine(cmd.OutOrStdout(), fine)

			return nil
		}),
	}
}

func newBookCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "book <book-id>",
		Short: "Show the copies and the reservation queue of a book",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.readContext(cmd.Context())

			book, err := a.coordinator.Book(ctx, args[0])
			if err != nil {
				return err
			}

			queue, err := a.coordinator.Queue(ctx, args[0])
			if err != nil {
				return err
			}

			printBook(cmd.OutOrStdout(), book)

			for _, r := range queue {
				printReservation(cmd.OutOrStdout(), r)
			}

			return nil
		}),
	}
}

func newLoansCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "loans",
		Short: "List the loans of the member",
		Args:  cobra.NoArgs,
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, _ []string) error {
			memberID, err := a.identity.AuthenticatedMember(cmd.Context())
			if err != nil {
				return err
			}

			loans, err := a.coordinator.LoansForMember(a.readContext(cmd.Context()), memberID)
			if err != nil {
				return err
			}

			if len(loans) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no loans for %s\n", memberID)
			}

			for _, loan := range loans {
				printLoan(cmd.OutOrStdout(), loan)
			}

			return nil
		}),
	}
}
