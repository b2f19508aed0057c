package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// Catalog is a circulation.Catalog on the catalog_books table.
type Catalog struct {
	store *Store
}

// LookupBook returns circulation.ErrBookNotFound if the book is not in catalog_books.
func (c *Catalog) LookupBook(ctx context.Context, bookID circulation.BookID) (circulation.CatalogEntry, error) {
	query, args, err := buildSelectCatalogEntryQuery(bookID)
	if err != nil {
		return circulation.CatalogEntry{}, err
	}

	entries, err := queryRows(ctx, c.store, c.store.readFunc(ctx), logActionReadCatalog, query, args, scanCatalogEntries)
	if err != nil {
		return circulation.CatalogEntry{}, err
	}

	if len(entries) == 0 {
		return circulation.CatalogEntry{}, circulation.ErrBookNotFound
	}

	return entries[0], nil
}

// Put adds or replaces a catalog entry.
func (c *Catalog) Put(ctx context.Context, entry circulation.CatalogEntry) error {
	if entry.TotalCopies < 0 {
		return circulation.ErrInvalidCopyCount
	}

	query, args, err := buildUpsertCatalogEntryQuery(entry)
	if err != nil {
		return err
	}

	s := c.store
	start := time.Now()
	_, execErr := s.db.Exec(ctx, query, args...)
	s.logQueryWithDuration(query, logActionWriteCatalog, time.Since(start))

	if execErr != nil {
		s.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, query)
		return errors.Join(ErrWritingFailed, execErr)
	}

	return nil
}

func scanCatalogEntries(rows adapters.DBRows) ([]circulation.CatalogEntry, error) {
	entries := make([]circulation.CatalogEntry, 0, 1)

	for rows.Next() {
		var entry circulation.CatalogEntry

		if err := rows.Scan(&entry.BookID, &entry.Title, &entry.TotalCopies); err != nil {
			return nil, errors.Join(ErrScanningDBRowFailed, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrScanningDBRowFailed, err)
	}

	return entries, nil
}
