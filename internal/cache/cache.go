// Package cache keeps the last rendered statement of each account, valid for
// as long as the account's ledger version does not move.
package cache

import (
	"sync"
	"time"

	"github.com/sheikh-saqib/account-ledger/internal/metrics"
	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// entry is never modified after it is stored.
type entry struct {
	statement models.Statement
	version   uint64
}

// Cache holds at most one entry per account. Entries are replaced whole, so
// readers never see a partly built one.
type Cache struct {
	entries sync.Map // int -> *entry
	now     func() time.Time
}

func New() *Cache {
	return &Cache{now: time.Now}
}

// NewWithClock is New with a fixed time source, for tests.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{now: now}
}

// GetOrRender returns the cached statement of the account with its statement
// date moved to now if it was rendered at version. Otherwise it renders a
// new one and stores it for version. Render errors are returned and nothing
// is cached.
func (c *Cache) GetOrRender(accountID int, version uint64, render func() (models.Statement, error)) (models.Statement, error) {
	if v, ok := c.entries.Load(accountID); ok {
		if e := v.(*entry); e.version == version {
			metrics.RecordCacheLookup("hit")
			return e.statement.AsOf(c.now()), nil
		}
	}
	metrics.RecordCacheLookup("miss")

	statement, err := render()
	if err != nil {
		return models.Statement{}, err
	}
	c.entries.Store(accountID, &entry{statement: statement, version: version})
	return statement, nil
}
