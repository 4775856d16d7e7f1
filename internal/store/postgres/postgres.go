package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/store"
	"tagpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func newWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ReplaceCatalog(ctx context.Context, entries []domain.CatalogEntry) error {
	for _, entry := range entries {
		if strings.TrimSpace(entry.Tag) == "" || strings.TrimSpace(entry.Name) == "" {
			return store.ErrInvalidTransaction
		}
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM catalog_entries`); err != nil {
		return err
	}
	for i, entry := range entries {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO catalog_entries (tag, name, unit_price, position)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (tag)
			DO UPDATE SET name = EXCLUDED.name, unit_price = EXCLUDED.unit_price
		`, entry.Tag, entry.Name, entry.UnitPrice, i)
		if err != nil {
			return err
		}
	}
	if err := bumpVersion(ctx, pgTx); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) ListCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, name, unit_price
		FROM catalog_entries
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CatalogEntry, 0, 64)
	for rows.Next() {
		var entry domain.CatalogEntry
		if err := rows.Scan(&entry.Tag, &entry.Name, &entry.UnitPrice); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetCatalogEntry(ctx context.Context, tag string) (*domain.CatalogEntry, error) {
	var entry domain.CatalogEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT tag, name, unit_price
		FROM catalog_entries
		WHERE tag = $1
	`, tag).Scan(&entry.Tag, &entry.Name, &entry.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) AppendStockEvent(ctx context.Context, event domain.StockEvent) (*domain.StockEvent, error) {
	if strings.TrimSpace(event.Tag) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if event.ID == "" {
		event.ID = xid.New("stk")
	}
	if event.ArrivedAt.IsZero() {
		event.ArrivedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_events (id, tag, name, unit_price, arrived_at)
		VALUES ($1,$2,$3,$4,$5)
	`, event.ID, event.Tag, event.Name, event.UnitPrice, event.ArrivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	if err := bumpVersion(ctx, pgTx); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Store) ListStockEvents(ctx context.Context) ([]domain.StockEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tag, name, unit_price, arrived_at
		FROM stock_events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.StockEvent, 0, 128)
	for rows.Next() {
		var event domain.StockEvent
		if err := rows.Scan(&event.ID, &event.Tag, &event.Name, &event.UnitPrice, &event.ArrivedAt); err != nil {
			return nil, err
		}
		event.ArrivedAt = event.ArrivedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == "" || tx.Status == "" {
		return store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, attempted_at, status, contact_number, total,
			gateway_order_id, gateway_payment_id, gateway_message
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tx.ID, tx.AttemptedAt, tx.Status, tx.ContactNumber, tx.Total,
		tx.Gateway.OrderID, tx.Gateway.PaymentID, tx.Gateway.Message)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}

	for _, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, line_item_id, name, unit_price, scanned_at, tag, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, tx.ID, item.ID, item.Name, item.UnitPrice, item.ScannedAt, item.Tag, item.Status)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrInvalidTransaction
			}
			return err
		}
	}

	if err := bumpVersion(ctx, pgTx); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempted_at, status, contact_number, total,
			gateway_order_id, gateway_payment_id, gateway_message
		FROM transactions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, 0, 128)
	index := make(map[string]int, 128)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[tx.ID] = len(txs)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, line_item_id, name, unit_price, scanned_at, tag, status
		FROM transaction_items
		ORDER BY transaction_id ASC, line_item_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var txID string
		var item domain.LineItem
		if err := itemRows.Scan(&txID, &item.ID, &item.Name, &item.UnitPrice, &item.ScannedAt, &item.Tag, &item.Status); err != nil {
			return nil, err
		}
		pos, ok := index[txID]
		if !ok {
			continue
		}
		item.ScannedAt = item.ScannedAt.UTC()
		txs[pos].Items = append(txs[pos].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, attempted_at, status, contact_number, total,
			gateway_order_id, gateway_payment_id, gateway_message
		FROM transactions
		WHERE id = $1
	`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := listItems(ctx, s.db, tx.ID)
	if err != nil {
		return nil, err
	}
	tx.Items = items
	return &tx, nil
}

func (s *Store) MarkLineItemReturned(ctx context.Context, transactionID string, lineItemID int) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	tx, err := scanTransaction(pgTx.QueryRowContext(ctx, `
		SELECT id, attempted_at, status, contact_number, total,
			gateway_order_id, gateway_payment_id, gateway_message
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if tx.Status != domain.TxStatusSuccess {
		return nil, store.ErrInvalidTransaction
	}

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM transaction_items
		WHERE transaction_id = $1 AND line_item_id = $2
		FOR UPDATE
	`, transactionID, lineItemID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.LineItemStatusReturned {
		return nil, store.ErrAlreadyReturned
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transaction_items
		SET status = $3
		WHERE transaction_id = $1 AND line_item_id = $2
	`, transactionID, lineItemID, domain.LineItemStatusReturned)
	if err != nil {
		return nil, err
	}
	if err := bumpVersion(ctx, pgTx); err != nil {
		return nil, err
	}

	items, err := listItems(ctx, pgTx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	tx.Items = items
	return &tx, nil
}

func (s *Store) DataVersion(ctx context.Context) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM data_version WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.AttemptedAt,
		&tx.Status,
		&tx.ContactNumber,
		&tx.Total,
		&tx.Gateway.OrderID,
		&tx.Gateway.PaymentID,
		&tx.Gateway.Message,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.AttemptedAt = tx.AttemptedAt.UTC()
	return tx, nil
}

func listItems(ctx context.Context, q queryer, transactionID string) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT line_item_id, name, unit_price, scanned_at, tag, status
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY line_item_id ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0, 8)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ID, &item.Name, &item.UnitPrice, &item.ScannedAt, &item.Tag, &item.Status); err != nil {
			return nil, err
		}
		item.ScannedAt = item.ScannedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func bumpVersion(ctx context.Context, pgTx *sql.Tx) error {
	_, err := pgTx.ExecContext(ctx, `UPDATE data_version SET version = version + 1 WHERE id = 1`)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
