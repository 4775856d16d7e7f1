// Package ledger answers read-only queries over the sales ledger. The ledger
// itself is append-only and lives in the repository.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"tagpos/backend/internal/domain"
)

// FilterByStatus keeps transactions with the given status in ledger order.
// An empty status keeps everything.
func FilterByStatus(txs []domain.Transaction, status string) []domain.Transaction {
	if status == "" {
		return txs
	}
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Status == status {
			out = append(out, tx)
		}
	}
	return out
}

// FilterByDateRange keeps transactions attempted in [from, to). A zero bound
// is open.
func FilterByDateRange(txs []domain.Transaction, from time.Time, to time.Time) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !from.IsZero() && tx.AttemptedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !tx.AttemptedAt.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// LineItems flattens the line items of txs in ledger order.
func LineItems(txs []domain.Transaction) []domain.LineItem {
	var out []domain.LineItem
	for _, tx := range txs {
		out = append(out, tx.Items...)
	}
	return out
}

// Summarize counts attempts by status and totals revenue over successful
// transactions. Returned items stay in revenue; they are reported apart.
func Summarize(txs []domain.Transaction) domain.SalesSummary {
	summary := domain.SalesSummary{RevenueTotal: decimal.Zero}
	for _, tx := range txs {
		summary.Transactions++
		switch tx.Status {
		case domain.TxStatusSuccess:
			summary.Succeeded++
		case domain.TxStatusFailed:
			summary.Failed++
			continue
		default:
			summary.Pending++
			continue
		}

		summary.RevenueTotal = summary.RevenueTotal.Add(tx.Total)
		for _, item := range tx.Items {
			if item.Status == domain.LineItemStatusReturned {
				summary.ItemsReturned++
				continue
			}
			summary.ItemsSold++
		}
	}
	return summary
}
