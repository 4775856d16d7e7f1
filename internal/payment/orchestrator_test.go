package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagpos/backend/internal/bill"
	"tagpos/backend/internal/domain"
)

type ledgerStub struct {
	txs []domain.Transaction
	err error
}

func (l *ledgerStub) AppendTransaction(_ context.Context, tx domain.Transaction) error {
	if l.err != nil {
		return l.err
	}
	l.txs = append(l.txs, tx)
	return nil
}

type receiptStub struct {
	sent []domain.Transaction
}

func (r *receiptStub) SendReceipt(_ context.Context, tx domain.Transaction) (string, []domain.Delivery) {
	r.sent = append(r.sent, tx)
	return "BILL-1234", []domain.Delivery{{Channel: "whatsapp_link", Success: true, Message: "link generated"}}
}

type recorderStub struct {
	orders   map[string]int
	payments map[string]int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{orders: map[string]int{}, payments: map[string]int{}}
}

func (r *recorderStub) OrderRequested(outcome string)  { r.orders[outcome]++ }
func (r *recorderStub) PaymentFinalized(status string) { r.payments[status]++ }

type fixture struct {
	bill     *bill.Bill
	gateway  *FakeGateway
	ledger   *ledgerStub
	receipts *receiptStub
	recorder *recorderStub
	orch     *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		bill:     bill.New(),
		gateway:  NewFakeGateway(),
		ledger:   &ledgerStub{},
		receipts: &receiptStub{},
		recorder: newRecorderStub(),
	}
	f.orch = NewOrchestrator(f.bill, f.gateway, f.ledger,
		WithReceipts(f.receipts),
		WithRecorder(f.recorder),
		WithKeyID("key_test"),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }),
	)
	return f
}

func (f *fixture) scanShirt() {
	f.bill.AddItem(domain.ItemCandidate{Name: "Shirt", UnitPrice: decimal.NewFromInt(499), Tag: "001"})
}

func TestSuccessfulPaymentFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.scanShirt()
	f.bill.SetContactNumber("9876543210")
	require.True(t, f.bill.Total().Equal(decimal.NewFromInt(499)))

	require.NoError(t, f.orch.RequestOrder(ctx))
	assert.Equal(t, StateOrderReady, f.orch.State())
	req, ok := f.gateway.LastRequest()
	require.True(t, ok)
	assert.Equal(t, int64(49900), req.AmountMinorUnits)
	assert.NotEmpty(t, req.MerchantTransactionID)

	session, err := f.orch.OpenCheckout()
	require.NoError(t, err)
	assert.Equal(t, StateCheckoutOpen, f.orch.State())
	assert.Equal(t, "order_fake_1", session.OrderID)
	assert.Equal(t, "9876543210", session.ContactNumber)
	assert.Equal(t, "key_test", session.KeyID)

	outcome, err := f.orch.Succeed(ctx, "pay_abc")
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, f.orch.State())
	assert.Equal(t, "BILL-1234", outcome.BillNumber)
	require.Len(t, outcome.Deliveries, 1)

	require.Len(t, f.ledger.txs, 1)
	tx := f.ledger.txs[0]
	assert.Equal(t, domain.TxStatusSuccess, tx.Status)
	assert.True(t, tx.Total.Equal(decimal.NewFromInt(499)))
	assert.Equal(t, req.MerchantTransactionID, tx.ID)
	assert.Equal(t, "pay_abc", tx.Gateway.PaymentID)
	assert.Equal(t, "order_fake_1", tx.Gateway.OrderID)
	require.Len(t, tx.Items, 1)
	assert.Equal(t, "001", tx.Items[0].Tag)
	require.Len(t, f.receipts.sent, 1)

	assert.Equal(t, 0, f.bill.Len())
	assert.True(t, f.bill.Total().IsZero())
	assert.Empty(t, f.bill.ContactNumber())
	assert.Equal(t, 1, f.recorder.orders["created"])
	assert.Equal(t, 1, f.recorder.payments[domain.TxStatusSuccess])
}

func TestEmptyBillNeverContactsGateway(t *testing.T) {
	f := newFixture()

	err := f.orch.RequestOrder(context.Background())
	assert.ErrorIs(t, err, ErrEmptyBill)
	assert.Equal(t, StateIdle, f.orch.State())
	assert.Equal(t, 0, f.gateway.Calls())
}

func TestOrderCreationFailureReturnsToIdle(t *testing.T) {
	ctx := context.Background()

	t.Run("declined", func(t *testing.T) {
		f := newFixture()
		f.scanShirt()
		f.gateway.Decline("merchant suspended")

		err := f.orch.RequestOrder(ctx)
		assert.ErrorIs(t, err, ErrOrderFailed)
		assert.Equal(t, StateIdle, f.orch.State())
		assert.Equal(t, "merchant suspended", f.orch.LastError())
		assert.Equal(t, 1, f.gateway.Calls())
		assert.Empty(t, f.ledger.txs)
		assert.Equal(t, 1, f.recorder.orders["failed"])
	})

	t.Run("unreachable then recovered", func(t *testing.T) {
		f := newFixture()
		f.scanShirt()
		f.gateway.SetUnavailable(true)

		require.ErrorIs(t, f.orch.RequestOrder(ctx), ErrOrderFailed)
		assert.Equal(t, 1, f.gateway.Calls())
		assert.NotEmpty(t, f.orch.LastError())

		f.gateway.SetUnavailable(false)
		require.NoError(t, f.orch.RequestOrder(ctx))
		assert.Equal(t, StateOrderReady, f.orch.State())
		assert.Empty(t, f.orch.LastError())
	})
}

func TestFailedPaymentKeepsBill(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.scanShirt()
	f.bill.SetContactNumber("9876543210")

	require.NoError(t, f.orch.RequestOrder(ctx))
	_, err := f.orch.OpenCheckout()
	require.NoError(t, err)

	tx, err := f.orch.Fail(ctx, "insufficient funds")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, tx.Status)
	assert.Equal(t, StateFailed, f.orch.State())
	assert.Equal(t, "insufficient funds", f.orch.LastError())
	assert.Equal(t, 1, f.bill.Len())
	assert.Equal(t, "9876543210", f.bill.ContactNumber())
	assert.Empty(t, f.receipts.sent)

	// retry after failure creates a fresh merchant transaction id
	require.NoError(t, f.orch.RequestOrder(ctx))
	_, err = f.orch.OpenCheckout()
	require.NoError(t, err)
	_, err = f.orch.Succeed(ctx, "pay_retry")
	require.NoError(t, err)

	require.Len(t, f.ledger.txs, 2)
	assert.NotEqual(t, f.ledger.txs[0].ID, f.ledger.txs[1].ID)
}

func TestOutOfOrderTransitionsAreRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.orch.OpenCheckout()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.orch.Succeed(ctx, "pay_x")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.orch.Fail(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidState)

	f.scanShirt()
	require.NoError(t, f.orch.RequestOrder(ctx))
	_, err = f.orch.OpenCheckout()
	require.NoError(t, err)
	assert.ErrorIs(t, f.orch.RequestOrder(ctx), ErrInvalidState)
	assert.Empty(t, f.ledger.txs)
}

func TestAbandonDiscardsOrderWithoutGateway(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.scanShirt()

	require.NoError(t, f.orch.RequestOrder(ctx))
	_, err := f.orch.OpenCheckout()
	require.NoError(t, err)
	calls := f.gateway.Calls()

	f.orch.Abandon()
	assert.Equal(t, StateIdle, f.orch.State())
	assert.Empty(t, f.orch.OrderID())
	assert.Equal(t, calls, f.gateway.Calls())
	assert.Empty(t, f.ledger.txs)
}

func TestBillEditedAfterOrderIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.scanShirt()
	require.NoError(t, f.orch.RequestOrder(ctx))

	f.scanShirt()
	_, err := f.orch.OpenCheckout()
	assert.ErrorIs(t, err, ErrStaleOrder)
	assert.Equal(t, StateIdle, f.orch.State())
}

func TestFreeItemAddedAfterOrderIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.scanShirt()
	require.NoError(t, f.orch.RequestOrder(ctx))

	f.bill.AddItem(domain.ItemCandidate{Name: "Gift Bag", UnitPrice: decimal.Zero, Tag: "900"})
	_, err := f.orch.OpenCheckout()
	assert.ErrorIs(t, err, ErrStaleOrder)
	assert.Equal(t, StateIdle, f.orch.State())
	assert.Empty(t, f.orch.OrderID())
}

func TestCheckoutUsesKeyIDFromOrderTime(t *testing.T) {
	ctx := context.Background()
	keyID := "key_first"
	b := bill.New()
	orch := NewOrchestrator(b, NewFakeGateway(), &ledgerStub{},
		WithKeyIDSource(func() string { return keyID }),
	)
	b.AddItem(domain.ItemCandidate{Name: "Shirt", UnitPrice: decimal.NewFromInt(499), Tag: "001"})

	require.NoError(t, orch.RequestOrder(ctx))
	keyID = "key_second"
	checkout, err := orch.OpenCheckout()
	require.NoError(t, err)
	assert.Equal(t, "key_first", checkout.KeyID)
}

func TestLedgerFailureKeepsCheckoutOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.scanShirt()
	require.NoError(t, f.orch.RequestOrder(ctx))
	_, err := f.orch.OpenCheckout()
	require.NoError(t, err)

	f.ledger.err = errors.New("disk full")
	_, err = f.orch.Succeed(ctx, "pay_abc")
	require.Error(t, err)
	assert.Equal(t, StateCheckoutOpen, f.orch.State())
	assert.Equal(t, 1, f.bill.Len())

	f.ledger.err = nil
	_, err = f.orch.Succeed(ctx, "pay_abc")
	require.NoError(t, err)
	assert.Equal(t, 0, f.bill.Len())
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(49900), ToMinorUnits(decimal.NewFromInt(499)))
	assert.Equal(t, int64(14950), ToMinorUnits(decimal.RequireFromString("149.50")))
	assert.Equal(t, int64(1001), ToMinorUnits(decimal.RequireFromString("10.005")))
	assert.Equal(t, int64(0), ToMinorUnits(decimal.Zero))
}
