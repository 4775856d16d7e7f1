// Package receipt renders customer receipts and delivers them over the
// configured messaging channels.
package receipt

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"tagpos/backend/internal/domain"
)

const (
	DefaultStoreName = "TagPOS Store"
	DefaultFooter    = "Thank you for shopping with us! Returns accepted within 7 days with this receipt."
	whatsAppBase     = "https://wa.me/91"
	receiptWidth     = 32
)

type Receipt struct {
	StoreName     string
	StoreAddress  string
	ContactNumber string
	Email         string
	Items         []domain.LineItem
	Total         decimal.Decimal
	Currency      string
	TransactionID string
	PaymentID     string
	BillNumber    string
	DocumentURL   string
	Footer        string
	IssuedAt      time.Time
}

// FromTransaction builds a receipt for tx using the store details. An empty
// billNumber gets a fresh random one.
func FromTransaction(tx domain.Transaction, details domain.StoreDetails, billNumber string) Receipt {
	if billNumber == "" {
		billNumber = NewBillNumber()
	}
	return Receipt{
		StoreName:     details.Name,
		StoreAddress:  details.Address,
		ContactNumber: tx.ContactNumber,
		Email:         details.Email,
		Items:         tx.Items,
		Total:         tx.Total,
		Currency:      details.Currency,
		TransactionID: tx.ID,
		PaymentID:     tx.Gateway.PaymentID,
		BillNumber:    billNumber,
		Footer:        details.ReceiptFooter,
		IssuedAt:      tx.AttemptedAt,
	}
}

// NewBillNumber returns the display-only bill number printed on receipts.
// It is not unique and is never used as a key.
func NewBillNumber() string {
	return fmt.Sprintf("BILL-%06d", rand.IntN(1_000_000))
}

// RedactPaymentID masks everything except the last four characters.
func RedactPaymentID(id string) string {
	runes := []rune(id)
	if len(runes) <= 4 {
		return id
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders amount with thousands grouping and two decimals,
// prefixed by the currency code when one is set.
func FormatAmount(currency string, amount decimal.Decimal) string {
	formatted := printer.Sprintf("%v", number.Decimal(amount.InexactFloat64(), number.Scale(2)))
	if currency == "" {
		return formatted
	}
	return currency + " " + formatted
}

// Lines renders the receipt one printable line at a time.
func Lines(r Receipt) []string {
	storeName := strings.TrimSpace(r.StoreName)
	if storeName == "" {
		storeName = DefaultStoreName
	}
	footer := strings.TrimSpace(r.Footer)
	if footer == "" {
		footer = DefaultFooter
	}
	rule := strings.Repeat("=", receiptWidth)
	thin := strings.Repeat("-", receiptWidth)

	lines := []string{storeName}
	if addr := strings.TrimSpace(r.StoreAddress); addr != "" {
		lines = append(lines, addr)
	}
	lines = append(lines, rule, "Bill No: "+r.BillNumber)
	if !r.IssuedAt.IsZero() {
		lines = append(lines, "Date: "+r.IssuedAt.Format("2006-01-02 15:04"))
	}
	lines = append(lines, thin)
	for _, item := range r.Items {
		name := item.Name
		if item.Status == domain.LineItemStatusReturned {
			name += " (returned)"
		}
		lines = append(lines, name, "  "+FormatAmount("", item.UnitPrice))
	}
	lines = append(lines,
		thin,
		"Items: "+fmt.Sprint(len(r.Items)),
		"Total: "+FormatAmount(r.Currency, r.Total),
	)
	if r.PaymentID != "" {
		lines = append(lines, "Payment: "+RedactPaymentID(r.PaymentID))
	}
	lines = append(lines, rule, footer)
	return lines
}

func Format(r Receipt) string {
	return strings.Join(Lines(r), "\n")
}

// WhatsAppLink builds a click-to-chat link carrying text to an Indian mobile
// number. Non-digits in contact are dropped.
func WhatsAppLink(contact string, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, contact)
	return whatsAppBase + digits + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// ESCPOS wraps lines in the printer init and partial-cut commands of a
// thermal receipt printer.
func ESCPOS(lines []string) []byte {
	out := []byte{0x1b, 0x40}
	for _, line := range lines {
		out = append(out, []byte(line)...)
		out = append(out, '\n')
	}
	return append(out, 0x1d, 0x56, 0x41, 0x10)
}
