package receipt

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"tagpos/backend/internal/domain"
)

// Recorder observes delivery outcomes per channel.
type Recorder interface {
	ReceiptDelivered(channel string, success bool)
}

type Dispatcher struct {
	logger   *zap.Logger
	recorder Recorder
}

func NewDispatcher(logger *zap.Logger, recorder Recorder) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger, recorder: recorder}
}

// Dispatch sends r over every channel and reports each outcome. A failing
// channel never stops the others and never surfaces as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, r Receipt, channels ...Channel) []domain.Delivery {
	text := Format(r)
	env := Envelope{
		Recipient:   r.ContactNumber,
		Email:       r.Email,
		Subject:     "Your receipt " + r.BillNumber,
		Body:        text,
		Caption:     "Receipt " + r.BillNumber,
		DocumentURL: r.DocumentURL,
	}

	deliveries := make([]domain.Delivery, 0, len(channels))
	for _, ch := range channels {
		result := d.send(ctx, ch, env)
		if !result.Success {
			d.logger.Warn("receipt delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("bill_number", r.BillNumber),
				zap.String("reason", result.Message),
			)
		}
		if d.recorder != nil {
			d.recorder.ReceiptDelivered(ch.Name(), result.Success)
		}
		deliveries = append(deliveries, domain.Delivery{Channel: ch.Name(), Success: result.Success, Message: result.Message})
	}
	return deliveries
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, env Envelope) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = Result{Success: false, Message: fmt.Sprintf("channel panicked: %v", rec)}
		}
	}()
	return ch.Send(ctx, env)
}

// DocumentURL points at the hosted copy of a transaction's receipt, or ""
// when no base url is configured.
func DocumentURL(baseURL string, transactionID string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || transactionID == "" {
		return ""
	}
	return baseURL + "/" + url.PathEscape(transactionID)
}
