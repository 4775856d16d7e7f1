// Package payment drives a bill through order creation, checkout and the
// gateway callbacks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tagpos/backend/internal/bill"
	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/xid"
)

type State string

const (
	StateIdle           State = "idle"
	StateOrderRequested State = "order_requested"
	StateOrderReady     State = "order_ready"
	StateCheckoutOpen   State = "checkout_open"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

var (
	ErrEmptyBill    = errors.New("bill total must be greater than zero")
	ErrInvalidState = errors.New("payment step not allowed in current state")
	ErrOrderFailed  = errors.New("order creation failed")
	ErrStaleOrder   = errors.New("bill changed after the order was created")
)

// LedgerWriter receives every finalized transaction.
type LedgerWriter interface {
	AppendTransaction(ctx context.Context, tx domain.Transaction) error
}

// ReceiptSender delivers the receipt for a successful transaction and
// returns the display bill number with the per-channel outcomes.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, tx domain.Transaction) (string, []domain.Delivery)
}

// Recorder observes orchestrator outcomes; the metrics package implements it.
type Recorder interface {
	OrderRequested(outcome string)
	PaymentFinalized(status string)
}

type Option func(*Orchestrator)

func WithReceipts(sender ReceiptSender) Option {
	return func(o *Orchestrator) { o.receipts = sender }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithKeyID(keyID string) Option {
	return func(o *Orchestrator) { o.keyID = func() string { return keyID } }
}

// WithKeyIDSource reads the public key id each time an order is created, so
// checkout always names the key the order was created under.
func WithKeyIDSource(keyID func() string) Option {
	return func(o *Orchestrator) { o.keyID = keyID }
}

func WithCurrency(currency string) Option {
	return func(o *Orchestrator) { o.currency = currency }
}

// Orchestrator owns one bill and its payment attempt. It is not safe for
// concurrent use.
type Orchestrator struct {
	bill     *bill.Bill
	gateway  Gateway
	ledger   LedgerWriter
	receipts ReceiptSender
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	keyID    func() string
	currency string

	state        State
	orderID      string
	merchantTxID string
	amount       int64
	itemCount    int
	orderKeyID   string
	lastError    string
}

func NewOrchestrator(b *bill.Bill, gateway Gateway, ledger LedgerWriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bill:    b,
		gateway: gateway,
		ledger:  ledger,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Bill() *bill.Bill {
	return o.bill
}

func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) OrderID() string {
	return o.orderID
}

func (o *Orchestrator) LastError() string {
	return o.lastError
}

// RequestOrder creates a gateway order for the current bill total. An empty
// bill never reaches the gateway. Any gateway failure returns the
// orchestrator to idle with the message kept in LastError; there is no retry.
func (o *Orchestrator) RequestOrder(ctx context.Context) error {
	switch o.state {
	case StateIdle, StateOrderReady, StateSucceeded, StateFailed:
	default:
		return fmt.Errorf("%w: cannot request order from %s", ErrInvalidState, o.state)
	}

	o.clearOrder()
	o.lastError = ""
	if !o.bill.Total().IsPositive() {
		o.state = StateIdle
		return ErrEmptyBill
	}

	o.state = StateOrderRequested
	o.merchantTxID = xid.New("txn")
	o.amount = ToMinorUnits(o.bill.Total())
	o.itemCount = o.bill.Len()
	if o.keyID != nil {
		o.orderKeyID = o.keyID()
	}

	result, err := o.gateway.CreateOrder(ctx, OrderRequest{
		AmountMinorUnits:      o.amount,
		MerchantTransactionID: o.merchantTxID,
		Currency:              o.currency,
	})
	if err == nil && !result.Success {
		err = errors.New(result.Message)
		if result.Message == "" {
			err = errors.New("gateway declined the order")
		}
	}
	if err != nil {
		o.logger.Warn("order creation failed",
			zap.String("merchant_tx_id", o.merchantTxID),
			zap.Int64("amount_minor", o.amount),
			zap.Error(err),
		)
		o.lastError = err.Error()
		o.clearOrder()
		o.state = StateIdle
		o.record(func(r Recorder) { r.OrderRequested("failed") })
		return fmt.Errorf("%w: %s", ErrOrderFailed, o.lastError)
	}

	o.orderID = result.OrderID
	o.state = StateOrderReady
	o.record(func(r Recorder) { r.OrderRequested("created") })
	o.logger.Info("order created",
		zap.String("order_id", o.orderID),
		zap.String("merchant_tx_id", o.merchantTxID),
		zap.Int64("amount_minor", o.amount),
	)
	return nil
}

// OpenCheckout hands the client what it needs to open the gateway checkout.
// A bill edited after the order was created drops back to idle.
func (o *Orchestrator) OpenCheckout() (domain.CheckoutSession, error) {
	if o.state != StateOrderReady {
		return domain.CheckoutSession{}, fmt.Errorf("%w: cannot open checkout from %s", ErrInvalidState, o.state)
	}
	if ToMinorUnits(o.bill.Total()) != o.amount || o.bill.Len() != o.itemCount {
		o.clearOrder()
		o.state = StateIdle
		return domain.CheckoutSession{}, ErrStaleOrder
	}

	o.state = StateCheckoutOpen
	return domain.CheckoutSession{
		OrderID:          o.orderID,
		AmountMinorUnits: o.amount,
		ContactNumber:    o.bill.ContactNumber(),
		KeyID:            o.orderKeyID,
	}, nil
}

// Succeed records the successful payment, sends the receipt and resets the
// bill. A ledger failure leaves checkout open so the callback can be replayed.
func (o *Orchestrator) Succeed(ctx context.Context, paymentID string) (domain.PaymentOutcome, error) {
	if o.state != StateCheckoutOpen {
		return domain.PaymentOutcome{}, fmt.Errorf("%w: cannot complete payment from %s", ErrInvalidState, o.state)
	}

	tx := o.transaction(domain.TxStatusSuccess, domain.GatewayResponse{
		OrderID:   o.orderID,
		PaymentID: paymentID,
		Message:   "payment captured",
	})
	if err := o.ledger.AppendTransaction(ctx, tx); err != nil {
		return domain.PaymentOutcome{}, fmt.Errorf("record transaction: %w", err)
	}

	outcome := domain.PaymentOutcome{Transaction: tx}
	if o.receipts != nil {
		outcome.BillNumber, outcome.Deliveries = o.receipts.SendReceipt(ctx, tx)
	}

	o.bill.Reset()
	o.clearOrder()
	o.lastError = ""
	o.state = StateSucceeded
	o.record(func(r Recorder) { r.PaymentFinalized(domain.TxStatusSuccess) })
	o.logger.Info("payment succeeded", zap.String("transaction_id", tx.ID), zap.String("total", tx.Total.StringFixed(2)))
	return outcome, nil
}

// Fail records the failed attempt. The bill is kept so the customer can retry.
func (o *Orchestrator) Fail(ctx context.Context, reason string) (domain.Transaction, error) {
	if o.state != StateCheckoutOpen {
		return domain.Transaction{}, fmt.Errorf("%w: cannot fail payment from %s", ErrInvalidState, o.state)
	}
	if reason == "" {
		reason = "payment failed"
	}

	tx := o.transaction(domain.TxStatusFailed, domain.GatewayResponse{OrderID: o.orderID, Message: reason})
	if err := o.ledger.AppendTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	o.clearOrder()
	o.lastError = reason
	o.state = StateFailed
	o.record(func(r Recorder) { r.PaymentFinalized(domain.TxStatusFailed) })
	o.logger.Info("payment failed", zap.String("transaction_id", tx.ID), zap.String("reason", reason))
	return tx, nil
}

// Abandon discards any pending order without contacting the gateway.
func (o *Orchestrator) Abandon() {
	o.clearOrder()
	o.lastError = ""
	o.state = StateIdle
}

func (o *Orchestrator) transaction(status string, gateway domain.GatewayResponse) domain.Transaction {
	return domain.Transaction{
		ID:            o.merchantTxID,
		AttemptedAt:   o.now(),
		Status:        status,
		ContactNumber: o.bill.ContactNumber(),
		Items:         o.bill.Snapshot(),
		Total:         o.bill.Total(),
		Gateway:       gateway,
	}
}

func (o *Orchestrator) clearOrder() {
	o.orderID = ""
	o.merchantTxID = ""
	o.amount = 0
	o.itemCount = 0
	o.orderKeyID = ""
}

func (o *Orchestrator) record(fn func(Recorder)) {
	if o.recorder != nil {
		fn(o.recorder)
	}
}

// ToMinorUnits converts a major-unit amount to the gateway's minor unit,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
