package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/metrics"
	"tagpos/backend/internal/payment"
	"tagpos/backend/internal/service"
	"tagpos/backend/internal/settings"
	"tagpos/backend/internal/store/memory"
)

type testServer struct {
	api     *API
	handler http.Handler
	gateway *payment.FakeGateway
	csrf    string
}

// newTestServer builds a full API with an in-memory store, real AuthManager
// and real Service so handler tests exercise the complete request path.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := memory.NewSeeded(nil)
	settingsStore, err := settings.Open("", domain.Settings{
		Payment: domain.PaymentKeys{KeyID: "key_test", KeySecret: "super-secret"},
	}, nil)
	require.NoError(t, err)

	m := metrics.New()
	gateway := payment.NewFakeGateway()
	svc := service.New(repo, gateway, settingsStore, service.WithRecorder(m))
	auth := NewAuthManager("test-secret-key-that-is-long-enough", time.Hour, repo)
	api := New(svc, auth, "*", m, nil)

	ts := &testServer{api: api, handler: api.Handler(), gateway: gateway}
	ts.csrf = ts.fetchCSRFToken(t)
	return ts
}

func (ts *testServer) fetchCSRFToken(t *testing.T) string {
	t.Helper()
	res := ts.do(t, http.MethodGet, "/api/v1/auth/csrf-token", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body["csrf_token"]
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	res := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	return resp.AccessToken
}

func (ts *testServer) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ts.csrf != "" {
		req.Header.Set("X-CSRF-Token", ts.csrf)
	}
	res := httptest.NewRecorder()
	ts.handler.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out), res.Body.String())
	return out
}

// checkout runs a whole sale for tags as the given terminal user.
func (ts *testServer) checkout(t *testing.T, token string, tags ...string) domain.PaymentOutcome {
	t.Helper()
	res := ts.do(t, http.MethodPost, "/api/v1/bills", token, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	id := decode[domain.BillView](t, res).SessionID

	for _, tag := range tags {
		res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/items", token, domain.AddItemRequest{Tag: tag})
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	}
	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/contact", token, domain.ContactRequest{ContactNumber: "9876543210"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/order", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/checkout", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/payment/success", token, domain.PaymentSuccessRequest{PaymentID: "pay_XYZ98765"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	return decode[domain.PaymentOutcome](t, res)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := decode[map[string]any](t, res)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	ts := newTestServer(t)

	token := ts.login(t, "admin", "admin123")
	assert.NotEmpty(t, token)

	res := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestBillFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	cashier := ts.login(t, "cashier", "cashier123")

	res := ts.do(t, http.MethodPost, "/api/v1/bills", cashier, nil)
	require.Equal(t, http.StatusCreated, res.Code)
	id := decode[domain.BillView](t, res).SessionID

	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/items", cashier, domain.AddItemRequest{Tag: "001"})
	require.Equal(t, http.StatusOK, res.Code)
	view := decode[domain.BillView](t, res)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "499", view.Total.String())

	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/contact", cashier, domain.ContactRequest{ContactNumber: "98765"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/contact", cashier, domain.ContactRequest{ContactNumber: "9876543210"})
	require.Equal(t, http.StatusOK, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/checkout", cashier, nil)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/order", cashier, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/checkout", cashier, nil)
	require.Equal(t, http.StatusOK, res.Code)
	checkout := decode[domain.CheckoutSession](t, res)
	assert.Equal(t, int64(49900), checkout.AmountMinorUnits)
	assert.Equal(t, "key_test", checkout.KeyID)

	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/payment/success", cashier, domain.PaymentSuccessRequest{PaymentID: "pay_XYZ98765"})
	require.Equal(t, http.StatusOK, res.Code)
	outcome := decode[domain.PaymentOutcome](t, res)
	assert.Equal(t, domain.TxStatusSuccess, outcome.Transaction.Status)
	require.NotEmpty(t, outcome.Deliveries)

	res = ts.do(t, http.MethodGet, "/api/v1/bills/"+id, cashier, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, decode[domain.BillView](t, res).Items)

	admin := ts.login(t, "admin", "admin123")
	res = ts.do(t, http.MethodGet, "/api/v1/transactions?status=success", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	listed := decode[map[string][]domain.Transaction](t, res)
	require.Len(t, listed["transactions"], 1)
	assert.Equal(t, outcome.Transaction.ID, listed["transactions"][0].ID)

	res = ts.do(t, http.MethodGet, "/api/v1/reports/sales", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, decode[domain.SalesSummary](t, res).Succeeded)
}

func TestEmptyBillOrderReturns422(t *testing.T) {
	ts := newTestServer(t)
	cashier := ts.login(t, "cashier", "cashier123")

	res := ts.do(t, http.MethodPost, "/api/v1/bills", cashier, nil)
	id := decode[domain.BillView](t, res).SessionID

	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/order", cashier, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Zero(t, ts.gateway.Calls())
}

func TestDeclinedOrderReturns502WithMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.Decline("gateway rejected amount")
	cashier := ts.login(t, "cashier", "cashier123")

	res := ts.do(t, http.MethodPost, "/api/v1/bills", cashier, nil)
	id := decode[domain.BillView](t, res).SessionID
	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/items", cashier, domain.AddItemRequest{Tag: "002"})
	require.Equal(t, http.StatusOK, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/bills/"+id+"/order", cashier, nil)
	require.Equal(t, http.StatusBadGateway, res.Code)
	body := decode[map[string]any](t, res)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "gateway rejected amount", body["message"])
}

func TestUnknownBillReturns404(t *testing.T) {
	ts := newTestServer(t)
	cashier := ts.login(t, "cashier", "cashier123")

	res := ts.do(t, http.MethodGet, "/api/v1/bills/bill_missing", cashier, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/bills/bill_missing/abandon", cashier, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestReturnsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	cashier := ts.login(t, "cashier", "cashier123")
	admin := ts.login(t, "admin", "admin123")

	res := ts.do(t, http.MethodPost, "/api/v1/inventory/stock-in", admin, domain.StockInRequest{Tag: "001"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	outcome := ts.checkout(t, cashier, "001")

	res = ts.do(t, http.MethodGet, "/api/v1/returns/lookup?tag=001", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	lookup := decode[domain.ReturnLookupResponse](t, res)
	require.True(t, lookup.Found)
	assert.Equal(t, outcome.Transaction.ID, lookup.Transaction.ID)

	req := domain.ReturnRequest{TransactionID: lookup.Transaction.ID, LineItemID: lookup.LineItem.ID}
	res = ts.do(t, http.MethodPost, "/api/v1/returns", admin, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = ts.do(t, http.MethodPost, "/api/v1/returns", admin, req)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/returns", admin, domain.ReturnRequest{TransactionID: "txn_missing", LineItemID: 1})
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = ts.do(t, http.MethodGet, "/api/v1/inventory", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	inventory := decode[domain.InventoryResponse](t, res)
	require.NotEmpty(t, inventory.Items)
	assert.Equal(t, "001", inventory.Items[0].Tag)
	assert.Equal(t, 0, inventory.Items[0].Available)
}

func TestManagerPermissionGate(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin", "admin123")
	manager := ts.login(t, "manager", "manager123")
	cashier := ts.login(t, "cashier", "cashier123")

	res := ts.do(t, http.MethodGet, "/api/v1/inventory", manager, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	res = ts.do(t, http.MethodGet, "/api/v1/inventory", cashier, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/managers/manager/permissions", admin, map[string][]string{"permissions": {"inventory"}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = ts.do(t, http.MethodGet, "/api/v1/inventory", manager, nil)
	assert.Equal(t, http.StatusOK, res.Code)
	res = ts.do(t, http.MethodGet, "/api/v1/returns/lookup?tag=001", manager, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/managers/ghost/permissions", admin, map[string][]string{"permissions": {"sales"}})
	assert.Equal(t, http.StatusNotFound, res.Code)
	res = ts.do(t, http.MethodPost, "/api/v1/managers/manager/permissions", admin, map[string][]string{"permissions": {"payroll"}})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestCreateManagerOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin", "admin123")

	res := ts.do(t, http.MethodPost, "/api/v1/managers", admin, domain.ManagerCreateRequest{
		Username:    "nightlead",
		Password:    "nightlead-pass",
		Permissions: []string{"returns"},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = ts.do(t, http.MethodPost, "/api/v1/managers", admin, domain.ManagerCreateRequest{Username: "nightlead", Password: "nightlead-pass"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = ts.do(t, http.MethodGet, "/api/v1/managers", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	managers := decode[map[string][]domain.ManagerUser](t, res)["managers"]
	var found *domain.ManagerUser
	for i := range managers {
		if managers[i].Username == "nightlead" {
			found = &managers[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []string{"returns"}, found.Permissions)

	res = ts.do(t, http.MethodGet, "/api/v1/audit-logs", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	logs := decode[map[string][]domain.AuditLog](t, res)["logs"]
	actions := make([]string, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	assert.Contains(t, actions, "manager_create")
}

func TestCreateManagerWithUnknownPermissionCreatesNothing(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin", "admin123")

	res := ts.do(t, http.MethodPost, "/api/v1/managers", admin, domain.ManagerCreateRequest{
		Username:    "nightlead",
		Password:    "nightlead-pass",
		Permissions: []string{"returns", "payroll"},
	})
	require.Equal(t, http.StatusBadRequest, res.Code, res.Body.String())

	res = ts.do(t, http.MethodGet, "/api/v1/managers", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	for _, m := range decode[map[string][]domain.ManagerUser](t, res)["managers"] {
		assert.NotEqual(t, "nightlead", m.Username)
	}

	res = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "nightlead", Password: "nightlead-pass"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = ts.do(t, http.MethodPost, "/api/v1/managers", admin, domain.ManagerCreateRequest{
		Username:    "nightlead",
		Password:    "nightlead-pass",
		Permissions: []string{"returns"},
	})
	assert.Equal(t, http.StatusCreated, res.Code, res.Body.String())
}

func TestCatalogImportOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin", "admin123")

	post := func(query, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/import"+query, strings.NewReader(body))
		req.Header.Set("Content-Type", "text/csv")
		req.Header.Set("Authorization", "Bearer "+admin)
		req.Header.Set("X-CSRF-Token", ts.csrf)
		res := httptest.NewRecorder()
		ts.handler.ServeHTTP(res, req)
		return res
	}

	res := post("?id_column=Code&name_column=Item&price_column=Rate", "Code,Item,Rate\nZ1,Tote Bag,\"1,250.00\"\nZ2,,10\n")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	imported := decode[domain.CatalogImportResponse](t, res)
	assert.Equal(t, 1, imported.Imported)
	assert.Equal(t, 1, imported.Skipped)

	res = post("", "Code,Item,Rate\nZ1,Tote Bag,10\n")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = post("", "\xff\xfei\x00d\x00,\x00n\x00a\x00m\x00e\x00\n")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = ts.do(t, http.MethodGet, "/api/v1/catalog", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	entries := decode[map[string][]domain.CatalogEntry](t, res)["catalog"]
	require.Len(t, entries, 1)
	assert.Equal(t, "1250", entries[0].UnitPrice.String())
}

func TestSettingsAreRedacted(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin", "admin123")

	res := ts.do(t, http.MethodGet, "/api/v1/settings", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	current := decode[domain.Settings](t, res)
	assert.Equal(t, settings.Mask, current.Payment.KeySecret)

	current.Store.Name = "Corner Shop"
	res = ts.do(t, http.MethodPost, "/api/v1/settings", admin, current)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	saved := decode[domain.Settings](t, res)
	assert.Equal(t, "Corner Shop", saved.Store.Name)
	assert.Equal(t, settings.Mask, saved.Payment.KeySecret)

	cashier := ts.login(t, "cashier", "cashier123")
	res = ts.do(t, http.MethodGet, "/api/v1/settings", cashier, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestEscposReceiptForCashier(t *testing.T) {
	ts := newTestServer(t)
	cashier := ts.login(t, "cashier", "cashier123")
	outcome := ts.checkout(t, cashier, "003")

	res := ts.do(t, http.MethodPost, "/api/v1/receipts/escpos", cashier, domain.ReceiptRequest{TransactionID: outcome.Transaction.ID})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	receipt := decode[domain.EscposReceiptResponse](t, res)
	assert.Contains(t, receipt.PreviewText, "Cotton Socks")
	assert.NotEmpty(t, receipt.EscposBase64)

	res = ts.do(t, http.MethodPost, "/api/v1/receipts/resend", cashier, domain.ReceiptRequest{TransactionID: outcome.Transaction.ID})
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	cashier := ts.login(t, "cashier", "cashier123")
	ts.checkout(t, cashier, "004")

	res := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "tagpos_http_requests_total")
	assert.Contains(t, body, `tagpos_payments_total{status="success"} 1`)
	assert.Contains(t, body, `tagpos_orders_total{outcome="created"} 1`)
}
