package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tagpos/backend/internal/bill"
	"tagpos/backend/internal/cache"
	"tagpos/backend/internal/catalog"
	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/inventory"
	"tagpos/backend/internal/ledger"
	"tagpos/backend/internal/payment"
	"tagpos/backend/internal/receipt"
	"tagpos/backend/internal/returns"
	"tagpos/backend/internal/settings"
	"tagpos/backend/internal/store"
	"tagpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var ErrSessionNotFound = fmt.Errorf("bill session %w", store.ErrNotFound)

// Recorder collects the business counters the service reports.
type Recorder interface {
	payment.Recorder
	receipt.Recorder
	ItemReturned()
}

type noopRecorder struct{}

func (noopRecorder) OrderRequested(string)         {}
func (noopRecorder) PaymentFinalized(string)       {}
func (noopRecorder) ReceiptDelivered(string, bool) {}
func (noopRecorder) ItemReturned()                 {}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func WithInventoryCache(c cache.InventoryCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.inventoryCache = c
		s.inventoryTTL = ttl
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.httpClient = client }
}

// WithCurrency sets the currency used when the store settings leave it empty.
func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = currency }
}

// WithGatewayKeyID sets the public key id handed to checkout when the store
// settings hold no complete key pair.
func WithGatewayKeyID(keyID string) Option {
	return func(s *Service) { s.keyID = keyID }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

const (
	defaultSessionIdle   = 30 * time.Minute
	defaultCheckoutGrace = 2 * time.Hour
)

// WithSessionTimeouts sets how long an untouched session survives, and the
// longer allowance for one whose checkout is open.
func WithSessionTimeouts(idle time.Duration, checkoutGrace time.Duration) Option {
	return func(s *Service) {
		s.sessionIdle = idle
		s.checkoutGrace = checkoutGrace
	}
}

type session struct {
	mu           sync.Mutex
	id           string
	orchestrator *payment.Orchestrator
	touched      time.Time // guarded by Service.mu
}

type Service struct {
	repo       store.Repository
	gateway    payment.Gateway
	settings   *settings.Store
	reconciler *inventory.Reconciler
	returns    *returns.Processor
	dispatcher *receipt.Dispatcher
	validate   *validator.Validate
	recorder   Recorder
	logger     *zap.Logger
	httpClient *http.Client
	currency   string
	keyID      string
	now        func() time.Time

	inventoryCache cache.InventoryCache
	inventoryTTL   time.Duration

	sessionIdle   time.Duration
	checkoutGrace time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

func New(repo store.Repository, gateway payment.Gateway, settingsStore *settings.Store, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		gateway:    gateway,
		settings:   settingsStore,
		validate:   validator.New(),
		recorder:   noopRecorder{},
		logger:     zap.NewNop(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		currency:   "INR",
		now:        func() time.Time { return time.Now().UTC() },
		sessions:   make(map[string]*session),

		sessionIdle:   defaultSessionIdle,
		checkoutGrace: defaultCheckoutGrace,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.reconciler = inventory.NewReconciler(repo, s.inventoryCache, s.inventoryTTL, s.logger.Named("inventory"))
	s.returns = returns.NewProcessor(repo)
	s.dispatcher = receipt.NewDispatcher(s.logger.Named("receipt"), s.recorder)
	return s
}

// OpenBill starts a new bill session for a terminal.
func (s *Service) OpenBill(ctx context.Context) (domain.BillView, error) {
	id := xid.New("bill")
	snapshot := s.settings.Get()

	orchestrator := payment.NewOrchestrator(
		bill.NewWithClock(s.now),
		s.gateway,
		s.repo,
		payment.WithReceipts(s),
		payment.WithRecorder(s.recorder),
		payment.WithLogger(s.logger.Named("payment").With(zap.String("session_id", id))),
		payment.WithClock(s.now),
		payment.WithKeyIDSource(s.gatewayKeyID),
		payment.WithCurrency(defaultString(snapshot.Store.Currency, s.currency)),
	)
	now := s.now()
	sess := &session{id: id, orchestrator: orchestrator, touched: now}

	s.mu.Lock()
	s.evictIdleLocked(now)
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("bill session opened", zap.String("session_id", id), zap.String("actor", actorName(ctx)))
	return viewOf(sess), nil
}

func (s *Service) GetBill(_ context.Context, sessionID string) (domain.BillView, error) {
	var view domain.BillView
	err := s.withSession(sessionID, func(sess *session) error {
		view = viewOf(sess)
		return nil
	})
	return view, err
}

// AddItem appends a scanned tag to the bill. Name and price come from the
// catalog unless the request overrides them.
func (s *Service) AddItem(ctx context.Context, sessionID string, req domain.AddItemRequest) (domain.BillView, error) {
	req.Tag = strings.TrimSpace(req.Tag)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return domain.BillView{}, invalid(err)
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return domain.BillView{}, fmt.Errorf("%w: unit price must not be negative", store.ErrInvalidTransaction)
	}

	candidate := domain.ItemCandidate{Tag: req.Tag, Name: req.Name}
	entry, err := s.repo.GetCatalogEntry(ctx, req.Tag)
	switch {
	case err == nil:
		candidate.Name = defaultString(candidate.Name, entry.Name)
		candidate.UnitPrice = entry.UnitPrice
	case errors.Is(err, store.ErrNotFound):
		if req.Name == "" || req.UnitPrice == nil {
			return domain.BillView{}, fmt.Errorf("tag %s: %w", req.Tag, store.ErrNotFound)
		}
	default:
		return domain.BillView{}, err
	}
	if req.UnitPrice != nil {
		candidate.UnitPrice = *req.UnitPrice
	}

	var view domain.BillView
	err = s.withSession(sessionID, func(sess *session) error {
		if err := editable(sess); err != nil {
			return err
		}
		sess.orchestrator.Bill().AddItem(candidate)
		view = viewOf(sess)
		return nil
	})
	return view, err
}

// SetContact validates the customer's 10-digit number before it reaches the
// bill, which stores whatever it is given.
func (s *Service) SetContact(_ context.Context, sessionID string, req domain.ContactRequest) (domain.BillView, error) {
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	if err := s.validate.Struct(req); err != nil {
		return domain.BillView{}, invalid(err)
	}

	var view domain.BillView
	err := s.withSession(sessionID, func(sess *session) error {
		if err := editable(sess); err != nil {
			return err
		}
		sess.orchestrator.Bill().SetContactNumber(req.ContactNumber)
		view = viewOf(sess)
		return nil
	})
	return view, err
}

func (s *Service) RequestOrder(ctx context.Context, sessionID string) (domain.BillView, error) {
	var view domain.BillView
	err := s.withSession(sessionID, func(sess *session) error {
		err := sess.orchestrator.RequestOrder(ctx)
		view = viewOf(sess)
		return err
	})
	return view, err
}

func (s *Service) OpenCheckout(_ context.Context, sessionID string) (domain.CheckoutSession, error) {
	var checkout domain.CheckoutSession
	err := s.withSession(sessionID, func(sess *session) error {
		var err error
		checkout, err = sess.orchestrator.OpenCheckout()
		return err
	})
	return checkout, err
}

func (s *Service) PaymentSucceeded(ctx context.Context, sessionID string, req domain.PaymentSuccessRequest) (domain.PaymentOutcome, error) {
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if err := s.validate.Struct(req); err != nil {
		return domain.PaymentOutcome{}, invalid(err)
	}

	var outcome domain.PaymentOutcome
	err := s.withSession(sessionID, func(sess *session) error {
		var err error
		outcome, err = sess.orchestrator.Succeed(ctx, req.PaymentID)
		return err
	})
	return outcome, err
}

func (s *Service) PaymentFailed(ctx context.Context, sessionID string, req domain.PaymentFailureRequest) (domain.Transaction, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate.Struct(req); err != nil {
		return domain.Transaction{}, invalid(err)
	}

	var tx domain.Transaction
	err := s.withSession(sessionID, func(sess *session) error {
		var err error
		tx, err = sess.orchestrator.Fail(ctx, req.Reason)
		return err
	})
	return tx, err
}

// Abandon drops the session and any pending order. The gateway is not told.
func (s *Service) Abandon(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	sess.orchestrator.Abandon()
	sess.mu.Unlock()

	s.logger.Info("bill session abandoned", zap.String("session_id", sessionID), zap.String("actor", actorName(ctx)))
	return nil
}

// SendReceipt dispatches the receipt for tx over the channels enabled in the
// current settings.
func (s *Service) SendReceipt(ctx context.Context, tx domain.Transaction) (string, []domain.Delivery) {
	snapshot := s.settings.Get()
	r := s.receiptFor(tx, snapshot)
	channels := receipt.ChannelsFromSettings(snapshot.Messaging, s.httpClient)
	return r.BillNumber, s.dispatcher.Dispatch(ctx, r, channels...)
}

func (s *Service) Inventory(ctx context.Context) (domain.InventoryResponse, error) {
	return s.reconciler.View(ctx)
}

// RecordStockIn appends one arrival. Name and price default from the
// catalog; a tag outside the catalog needs both.
func (s *Service) RecordStockIn(ctx context.Context, req domain.StockInRequest) (domain.StockEvent, error) {
	req.Tag = strings.TrimSpace(req.Tag)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return domain.StockEvent{}, invalid(err)
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return domain.StockEvent{}, fmt.Errorf("%w: unit price must not be negative", store.ErrInvalidTransaction)
	}

	event := domain.StockEvent{Tag: req.Tag, Name: req.Name, ArrivedAt: s.now()}
	entry, err := s.repo.GetCatalogEntry(ctx, req.Tag)
	switch {
	case err == nil:
		event.Name = defaultString(event.Name, entry.Name)
		event.UnitPrice = entry.UnitPrice
	case errors.Is(err, store.ErrNotFound):
		if req.Name == "" || req.UnitPrice == nil {
			return domain.StockEvent{}, fmt.Errorf("tag %s: %w", req.Tag, store.ErrNotFound)
		}
	default:
		return domain.StockEvent{}, err
	}
	if req.UnitPrice != nil {
		event.UnitPrice = *req.UnitPrice
	}

	created, err := s.repo.AppendStockEvent(ctx, event)
	if err != nil {
		return domain.StockEvent{}, err
	}
	s.logAudit(ctx, "stock_in", "stock_event", created.ID, fmt.Sprintf("tag=%s,price=%s", created.Tag, created.UnitPrice.StringFixed(2)))
	return *created, nil
}

func (s *Service) ListCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	return s.repo.ListCatalog(ctx)
}

// ImportCatalog replaces the catalog with the rows of a CSV export.
func (s *Service) ImportCatalog(ctx context.Context, r io.Reader, mapping catalog.Mapping) (domain.CatalogImportResponse, error) {
	result, err := catalog.Parse(r, mapping)
	if err != nil {
		return domain.CatalogImportResponse{}, err
	}
	if err := s.repo.ReplaceCatalog(ctx, result.Entries); err != nil {
		return domain.CatalogImportResponse{}, err
	}

	s.logAudit(ctx, "catalog_import", "catalog", "", fmt.Sprintf("imported=%d,skipped=%d", len(result.Entries), result.Skipped))
	return domain.CatalogImportResponse{Imported: len(result.Entries), Skipped: result.Skipped}, nil
}

func (s *Service) LookupReturn(ctx context.Context, tag string) (domain.ReturnLookupResponse, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return domain.ReturnLookupResponse{}, fmt.Errorf("%w: tag is required", store.ErrInvalidTransaction)
	}

	match, found, err := s.returns.Lookup(ctx, tag)
	if err != nil || !found {
		return domain.ReturnLookupResponse{Found: false}, err
	}
	return domain.ReturnLookupResponse{
		Found:       true,
		Transaction: &match.Transaction,
		LineItem:    &match.LineItem,
	}, nil
}

func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.Transaction, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if err := s.validate.Struct(req); err != nil {
		return domain.Transaction{}, invalid(err)
	}

	tx, err := s.returns.Process(ctx, req.TransactionID, req.LineItemID)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.recorder.ItemReturned()
	s.logAudit(ctx, "item_return", "transaction", tx.ID, fmt.Sprintf("line_item=%d", req.LineItemID))
	return tx, nil
}

// ListTransactions queries the ledger. Bounds accept a date or an RFC 3339
// timestamp; from is inclusive and to is exclusive.
func (s *Service) ListTransactions(ctx context.Context, status string, from string, to string) ([]domain.Transaction, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.TxStatusPending, domain.TxStatusSuccess, domain.TxStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidTransaction, status)
	}
	fromAt, toAt, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.FilterByStatus(ledger.FilterByDateRange(txs, fromAt, toAt), status), nil
}

func (s *Service) SalesSummary(ctx context.Context, from string, to string) (domain.SalesSummary, error) {
	fromAt, toAt, err := parseRange(from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	txs, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return ledger.Summarize(ledger.FilterByDateRange(txs, fromAt, toAt)), nil
}

func (s *Service) BuildEscposReceipt(ctx context.Context, req domain.ReceiptRequest) (domain.EscposReceiptResponse, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if err := s.validate.Struct(req); err != nil {
		return domain.EscposReceiptResponse{}, invalid(err)
	}
	tx, err := s.repo.FindTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return domain.EscposReceiptResponse{}, err
	}

	lines := receipt.Lines(s.receiptFor(*tx, s.settings.Get()))
	return domain.EscposReceiptResponse{
		TransactionID: tx.ID,
		EscposBase64:  base64.StdEncoding.EncodeToString(receipt.ESCPOS(lines)),
		PreviewText:   strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.bin", tx.ID),
	}, nil
}

// ResendReceipt dispatches the receipt of a successful transaction again.
func (s *Service) ResendReceipt(ctx context.Context, req domain.ReceiptRequest) (domain.ResendReceiptResponse, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if err := s.validate.Struct(req); err != nil {
		return domain.ResendReceiptResponse{}, invalid(err)
	}
	tx, err := s.repo.FindTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return domain.ResendReceiptResponse{}, err
	}
	if tx.Status != domain.TxStatusSuccess {
		return domain.ResendReceiptResponse{}, fmt.Errorf("%w: only successful transactions have receipts", store.ErrInvalidTransaction)
	}

	_, deliveries := s.SendReceipt(ctx, *tx)
	s.logAudit(ctx, "receipt_resend", "transaction", tx.ID, fmt.Sprintf("channels=%d", len(deliveries)))
	return domain.ResendReceiptResponse{TransactionID: tx.ID, Deliveries: deliveries}, nil
}

func (s *Service) GetSettings() domain.Settings {
	return settings.Redacted(s.settings.Get())
}

// UpdateSettings saves the whole snapshot. Masked secrets keep their stored
// values and manager grants are only changed through the manager endpoints.
func (s *Service) UpdateSettings(ctx context.Context, next domain.Settings) (domain.Settings, error) {
	if err := s.validate.Struct(next); err != nil {
		return domain.Settings{}, invalid(err)
	}
	channels := make([]string, 0, len(next.Messaging.EnabledChannels))
	for _, name := range next.Messaging.EnabledChannels {
		name = strings.ToLower(strings.TrimSpace(name))
		if !receipt.IsKnownChannel(name) {
			return domain.Settings{}, fmt.Errorf("%w: unknown channel %q", store.ErrInvalidTransaction, name)
		}
		channels = append(channels, name)
	}
	next.Messaging.EnabledChannels = channels
	next.Store.Currency = strings.ToUpper(strings.TrimSpace(next.Store.Currency))

	saved, err := s.settings.Update(func(current *domain.Settings) error {
		settings.KeepMaskedSecrets(&next, *current)
		next.Managers = current.Managers
		*current = next
		return nil
	})
	if err != nil {
		return domain.Settings{}, err
	}

	s.logAudit(ctx, "settings_update", "settings", "", fmt.Sprintf("channels=%s", strings.Join(channels, "|")))
	return settings.Redacted(saved), nil
}

// GrantPermissions replaces the areas a manager may use.
func (s *Service) GrantPermissions(ctx context.Context, username string, permissions []string) ([]string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", store.ErrInvalidTransaction)
	}
	if err := ValidatePermissions(permissions); err != nil {
		return nil, err
	}

	saved, err := s.settings.Update(func(current *domain.Settings) error {
		settings.SetPermissions(current, username, permissions)
		return nil
	})
	if err != nil {
		return nil, err
	}

	granted := settings.PermissionsFor(saved, username)
	s.logAudit(ctx, "manager_permissions", "user", username, strings.Join(granted, "|"))
	return granted, nil
}

func (s *Service) ManagerPermissions(username string) []string {
	return settings.PermissionsFor(s.settings.Get(), username)
}

// HasPermission reports whether actor may use area. Admins may use every
// area; managers only those granted in settings.
func (s *Service) HasPermission(actor domain.Actor, area string) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleManager:
		for _, p := range s.ManagerPermissions(actor.Username) {
			if p == area {
				return true
			}
		}
	}
	return false
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now().UTC()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidTransaction)
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// LogAudit records an admin action performed outside the service.
func (s *Service) LogAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	s.logAudit(ctx, action, entityType, entityID, detail)
}

func (s *Service) withSession(sessionID string, fn func(*session) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		sess.touched = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess)
}

// evictIdleLocked drops sessions a terminal walked away from. A session in
// use right now is skipped, and an open checkout gets the longer grace
// period. Must be called with s.mu held.
func (s *Service) evictIdleLocked(now time.Time) {
	for id, sess := range s.sessions {
		idle := now.Sub(sess.touched)
		if idle < s.sessionIdle {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		state := sess.orchestrator.State()
		if state == payment.StateCheckoutOpen && idle < s.checkoutGrace {
			sess.mu.Unlock()
			continue
		}
		sess.orchestrator.Abandon()
		sess.mu.Unlock()

		delete(s.sessions, id)
		s.logger.Info("idle bill session discarded",
			zap.String("session_id", id),
			zap.String("state", string(state)),
			zap.Duration("idle", idle),
		)
	}
}

// gatewayKeyID follows the same rule as the gateway credentials: the settings
// pair when complete, otherwise the configured fallback.
func (s *Service) gatewayKeyID() string {
	keys := s.settings.Get().Payment
	if (payment.Credentials{KeyID: keys.KeyID, KeySecret: keys.KeySecret}).Complete() {
		return keys.KeyID
	}
	return s.keyID
}

func (s *Service) receiptFor(tx domain.Transaction, snapshot domain.Settings) receipt.Receipt {
	details := snapshot.Store
	details.Currency = defaultString(details.Currency, s.currency)
	r := receipt.FromTransaction(tx, details, "")
	r.DocumentURL = receipt.DocumentURL(snapshot.Messaging.DocumentBaseURL, tx.ID)
	return r
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

// editable rejects bill edits once the customer is paying for it.
func editable(sess *session) error {
	switch state := sess.orchestrator.State(); state {
	case payment.StateOrderRequested, payment.StateCheckoutOpen:
		return fmt.Errorf("%w: bill is locked while %s", payment.ErrInvalidState, state)
	}
	return nil
}

func viewOf(sess *session) domain.BillView {
	o := sess.orchestrator
	b := o.Bill()
	return domain.BillView{
		SessionID:     sess.id,
		Items:         b.Snapshot(),
		Total:         b.Total(),
		ContactNumber: b.ContactNumber(),
		PaymentState:  string(o.State()),
		OrderID:       o.OrderID(),
		LastError:     o.LastError(),
	}
}

func parseRange(from string, to string) (time.Time, time.Time, error) {
	fromAt, err := parseBound(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toAt, err := parseBound(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !fromAt.IsZero() && !toAt.IsZero() && !fromAt.Before(toAt) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be before to", store.ErrInvalidTransaction)
	}
	return fromAt, toAt, nil
}

func parseBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q", store.ErrInvalidTransaction, raw)
	}
	return t.UTC(), nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, err.Error())
}

// ValidatePermissions rejects any area outside domain.AllPermissions.
func ValidatePermissions(permissions []string) error {
	for _, p := range permissions {
		if !isKnownPermission(p) {
			return fmt.Errorf("%w: unknown permission %q", store.ErrInvalidTransaction, p)
		}
	}
	return nil
}

func isKnownPermission(p string) bool {
	p = strings.ToLower(strings.TrimSpace(p))
	for _, known := range domain.AllPermissions {
		if known == p {
			return true
		}
	}
	return false
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
