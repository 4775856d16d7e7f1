package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LineItemStatusSold     = "sold"
	LineItemStatusReturned = "returned"
)

const (
	TxStatusPending = "pending"
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// Manager permissions granted from the admin area.
const (
	PermissionInventory = "inventory"
	PermissionReturns   = "returns"
	PermissionSales     = "sales"
	PermissionCatalog   = "catalog"
)

var AllPermissions = []string{PermissionInventory, PermissionReturns, PermissionSales, PermissionCatalog}

type LineItem struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ScannedAt time.Time       `json:"scanned_at"`
	Tag       string          `json:"tag"`
	Status    string          `json:"status"`
}

// ItemCandidate is what a scan produces before it becomes a LineItem.
type ItemCandidate struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Tag       string          `json:"tag"`
}

type GatewayResponse struct {
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Transaction struct {
	ID            string          `json:"id"`
	AttemptedAt   time.Time       `json:"attempted_at"`
	Status        string          `json:"status"`
	ContactNumber string          `json:"contact_number"`
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Gateway       GatewayResponse `json:"gateway"`
}

type StockEvent struct {
	ID        string          `json:"id"`
	Tag       string          `json:"tag"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ArrivedAt time.Time       `json:"arrived_at"`
}

type CatalogEntry struct {
	Tag       string          `json:"tag"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type StockLevel struct {
	Tag       string          `json:"tag"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	StockIn   int             `json:"stock_in"`
	StockOut  int             `json:"stock_out"`
	Available int             `json:"available"`
}

type InventoryResponse struct {
	Items       []StockLevel `json:"items"`
	GeneratedAt string       `json:"generated_at"`
}

type SalesSummary struct {
	Transactions  int             `json:"transactions"`
	Succeeded     int             `json:"succeeded"`
	Failed        int             `json:"failed"`
	Pending       int             `json:"pending"`
	RevenueTotal  decimal.Decimal `json:"revenue_total"`
	ItemsSold     int             `json:"items_sold"`
	ItemsReturned int             `json:"items_returned"`
}

type BillView struct {
	SessionID     string          `json:"session_id"`
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	ContactNumber string          `json:"contact_number"`
	PaymentState  string          `json:"payment_state"`
	OrderID       string          `json:"order_id,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

type AddItemRequest struct {
	Tag       string           `json:"tag" validate:"required,max=64"`
	Name      string           `json:"name,omitempty" validate:"max=200"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type ContactRequest struct {
	ContactNumber string `json:"contact_number" validate:"required,len=10,numeric"`
}

type CheckoutSession struct {
	OrderID          string `json:"order_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	ContactNumber    string `json:"contact_number"`
	KeyID            string `json:"key_id,omitempty"`
}

type PaymentSuccessRequest struct {
	PaymentID string `json:"payment_id" validate:"required,max=128"`
}

type PaymentFailureRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type PaymentOutcome struct {
	Transaction Transaction `json:"transaction"`
	BillNumber  string      `json:"bill_number,omitempty"`
	Deliveries  []Delivery  `json:"deliveries,omitempty"`
}

// Delivery reports one messaging channel attempt for a receipt.
type Delivery struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type StockInRequest struct {
	Tag       string           `json:"tag" validate:"required,max=64"`
	Name      string           `json:"name,omitempty" validate:"max=200"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type CatalogImportResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type ReturnLookupResponse struct {
	Found       bool         `json:"found"`
	Transaction *Transaction `json:"transaction,omitempty"`
	LineItem    *LineItem    `json:"line_item,omitempty"`
}

type ReturnRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	LineItemID    int    `json:"line_item_id" validate:"required,min=1"`
}

type ReceiptRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
}

type EscposReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

type ResendReceiptResponse struct {
	TransactionID string     `json:"transaction_id"`
	Deliveries    []Delivery `json:"deliveries"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type ManagerCreateRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Permissions []string `json:"permissions"`
}

type ManagerUser struct {
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// Settings is the persisted store configuration. It is loaded and saved as
// one snapshot; there is no per-field transaction.
type Settings struct {
	Store     StoreDetails      `json:"store" mapstructure:"store"`
	Payment   PaymentKeys       `json:"payment" mapstructure:"payment"`
	Messaging MessagingSettings `json:"messaging" mapstructure:"messaging"`
	Managers  []ManagerGrant    `json:"managers" mapstructure:"managers"`
}

type StoreDetails struct {
	Name          string `json:"name" mapstructure:"name" validate:"max=120"`
	Address       string `json:"address" mapstructure:"address" validate:"max=300"`
	Phone         string `json:"phone" mapstructure:"phone" validate:"omitempty,max=20"`
	Email         string `json:"email" mapstructure:"email" validate:"omitempty,email"`
	ReceiptFooter string `json:"receipt_footer" mapstructure:"receipt_footer" validate:"max=500"`
	Currency      string `json:"currency" mapstructure:"currency" validate:"omitempty,len=3"`
}

type PaymentKeys struct {
	KeyID     string `json:"key_id" mapstructure:"key_id"`
	KeySecret string `json:"key_secret" mapstructure:"key_secret"`
}

type MessagingSettings struct {
	EnabledChannels  []string `json:"enabled_channels" mapstructure:"enabled_channels"`
	SMSEndpoint      string   `json:"sms_endpoint" mapstructure:"sms_endpoint" validate:"omitempty,url"`
	SMSAPIKey        string   `json:"sms_api_key" mapstructure:"sms_api_key"`
	WhatsAppEndpoint string   `json:"whatsapp_endpoint" mapstructure:"whatsapp_endpoint" validate:"omitempty,url"`
	WhatsAppToken    string   `json:"whatsapp_token" mapstructure:"whatsapp_token"`
	EmailEndpoint    string   `json:"email_endpoint" mapstructure:"email_endpoint" validate:"omitempty,url"`
	EmailAPIKey      string   `json:"email_api_key" mapstructure:"email_api_key"`
	EmailFrom        string   `json:"email_from" mapstructure:"email_from" validate:"omitempty,email"`
	DocumentBaseURL  string   `json:"document_base_url" mapstructure:"document_base_url" validate:"omitempty,url"`
}

type ManagerGrant struct {
	Username    string   `json:"username" mapstructure:"username"`
	Permissions []string `json:"permissions" mapstructure:"permissions"`
}
