package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

var errInvalidCatalogCSV = errors.New("invalid catalog csv")

type catalogRow struct {
	BookID string `validate:"required,max=128"`
	Title  string `validate:"required"`
	Copies int    `validate:"gte=0"`
}

var catalogRowValidator = validator.New(validator.WithRequiredStructEnabled())

// parseCatalogCSV reads book_id,title,copies rows. A first row starting with "book_id" is a header.
func parseCatalogCSV(r io.Reader) ([]circulation.CatalogEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var entries []circulation.CatalogEntry

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return nil, errors.Join(errInvalidCatalogCSV, err)
		}

		if line == 1 && strings.EqualFold(record[0], "book_id") {
			continue
		}

		copies, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: copies: %w", errInvalidCatalogCSV, line, err)
		}

		row := catalogRow{
			BookID: strings.TrimSpace(record[0]),
			Title:  strings.TrimSpace(record[1]),
			Copies: copies,
		}

		if err = catalogRowValidator.Struct(row); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", errInvalidCatalogCSV, line, err)
		}

		entries = append(entries, circulation.CatalogEntry{BookID: row.BookID, Title: row.Title, TotalCopies: row.Copies})
	}
}

func newCatalogImportCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import catalog entries and set their copies from book_id,title,copies rows",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(deps, flags, func(cmd *cobra.Command, a *app, args []string) error {
			if a.catalog == nil {
				return errRequiresPostgres
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := parseCatalogCSV(f)
			if err != nil {
				return err
			}

			for _, entry := range entries {
				if err = a.catalog.Put(cmd.Context(), entry); err != nil {
					return err
				}

				inv, err := a.coordinator.AdjustInventory(cmd.Context(), entry.BookID, entry.TotalCopies)
				if err != nil {
					return err
				}

				printInventory(cmd.OutOrStdout(), inv)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d books\n", len(entries))

			return nil
		}),
	}
}
