// Package returns locates sold line items and takes them back.
package returns

import (
	"context"
	"fmt"

	"tagpos/backend/internal/domain"
)

type Match struct {
	Transaction domain.Transaction
	LineItem    domain.LineItem
}

// FindByTag scans the ledger in insertion order and returns the first line
// item carrying tag. Status is not considered: a returned item still matches.
func FindByTag(txs []domain.Transaction, tag string) (Match, bool) {
	if tag == "" {
		return Match{}, false
	}
	for _, tx := range txs {
		for _, item := range tx.Items {
			if item.Tag == tag {
				return Match{Transaction: tx, LineItem: item}, true
			}
		}
	}
	return Match{}, false
}

// Ledger is the slice of the repository returns work against.
type Ledger interface {
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	MarkLineItemReturned(ctx context.Context, transactionID string, lineItemID int) (*domain.Transaction, error)
}

type Processor struct {
	ledger Ledger
}

func NewProcessor(ledger Ledger) *Processor {
	return &Processor{ledger: ledger}
}

func (p *Processor) Lookup(ctx context.Context, tag string) (Match, bool, error) {
	txs, err := p.ledger.ListTransactions(ctx)
	if err != nil {
		return Match{}, false, err
	}
	match, ok := FindByTag(txs, tag)
	return match, ok, nil
}

// Process flips one line item to returned. The ledger rejects items that
// are already returned and transactions that did not succeed.
func (p *Processor) Process(ctx context.Context, transactionID string, lineItemID int) (domain.Transaction, error) {
	tx, err := p.ledger.MarkLineItemReturned(ctx, transactionID, lineItemID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("return line item %d of %s: %w", lineItemID, transactionID, err)
	}
	return *tx, nil
}
