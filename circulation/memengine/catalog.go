package memengine

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Catalog is an in-process circulation.Catalog.
type Catalog struct {
	mu      sync.RWMutex
	entries map[circulation.BookID]circulation.CatalogEntry
}

// NewCatalog creates a Catalog holding the given entries.
func NewCatalog(entries ...circulation.CatalogEntry) *Catalog {
	c := &Catalog{entries: make(map[circulation.BookID]circulation.CatalogEntry, len(entries))}

	for _, entry := range entries {
		c.entries[entry.BookID] = entry
	}

	return c
}

// Put adds or replaces a catalog entry.
func (c *Catalog) Put(entry circulation.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.BookID] = entry
}

// LookupBook returns circulation.ErrBookNotFound for unknown books.
func (c *Catalog) LookupBook(ctx context.Context, bookID circulation.BookID) (circulation.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return circulation.CatalogEntry{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[bookID]
	if !ok {
		return circulation.CatalogEntry{}, circulation.ErrBookNotFound
	}

	return entry, nil
}
