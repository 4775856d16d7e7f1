// Package bill holds the in-progress cart of one customer session.
//
// A Bill is not safe for concurrent use; callers serialize access.
package bill

import (
	"time"

	"github.com/shopspring/decimal"

	"tagpos/backend/internal/domain"
)

type Bill struct {
	items   []domain.LineItem
	total   decimal.Decimal
	contact string
	nextID  int
	now     func() time.Time
}

func New() *Bill {
	return NewWithClock(func() time.Time { return time.Now().UTC() })
}

func NewWithClock(now func() time.Time) *Bill {
	return &Bill{total: decimal.Zero, nextID: 1, now: now}
}

// AddItem appends one scanned unit. Scanning the same tag twice yields two
// line items.
func (b *Bill) AddItem(candidate domain.ItemCandidate) domain.LineItem {
	item := domain.LineItem{
		ID:        b.nextID,
		Name:      candidate.Name,
		UnitPrice: candidate.UnitPrice,
		ScannedAt: b.now(),
		Tag:       candidate.Tag,
		Status:    domain.LineItemStatusSold,
	}
	b.nextID++
	b.items = append(b.items, item)
	b.total = b.total.Add(candidate.UnitPrice)
	return item
}

// SetContactNumber stores the raw value; format checks belong to the caller.
func (b *Bill) SetContactNumber(value string) {
	b.contact = value
}

// Reset starts a fresh bill; line item ids restart at 1.
func (b *Bill) Reset() {
	b.items = nil
	b.nextID = 1
	b.total = decimal.Zero
	b.contact = ""
}

func (b *Bill) Total() decimal.Decimal {
	return b.total
}

func (b *Bill) ContactNumber() string {
	return b.contact
}

func (b *Bill) Len() int {
	return len(b.items)
}

// Snapshot returns a copy of the line items that later mutations cannot reach.
func (b *Bill) Snapshot() []domain.LineItem {
	out := make([]domain.LineItem, len(b.items))
	copy(out, b.items)
	return out
}
