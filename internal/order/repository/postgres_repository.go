package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `id, order_number, customer_id, items, subtotal, shipping_cost, vat_amount, total_amount,
	currency, payment_method, payment_status, payment_amount, transaction_id, shipping,
	delivery_method, estimated_delivery, order_date, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, order *d.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping info: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = tx.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.CustomerID,
		itemsJSON,
		order.Subtotal,
		order.ShippingCost,
		order.VATAmount,
		order.TotalAmount,
		order.Currency,
		order.Payment.Method,
		order.Payment.Status,
		order.Payment.Amount,
		order.Payment.TransactionID,
		shippingJSON,
		order.Delivery.Method,
		order.Delivery.EstimatedDelivery,
		order.OrderDate,
		order.CreatedAt,
		order.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, entry := range order.History {
		if err := insertHistory(ctx, tx, order.ID, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*d.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	if order.History, err = r.history(ctx, id); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerID string) ([]*d.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY order_date DESC`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by customer id: %w", err)
	}
	defer rows.Close()

	var orders []*d.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, order := range orders {
		if order.History, err = r.history(ctx, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// AppendPaymentStatus updates the payment columns only if the stored status is
// still the expected one, and inserts the history row in the same transaction.
func (r *PostgresRepository) AppendPaymentStatus(ctx context.Context, id uuid.UUID, change StatusChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET payment_status = $1,
		     transaction_id = CASE WHEN $2 = '' THEN transaction_id ELSE $2 END,
		     updated_at = $3
		 WHERE id = $4 AND payment_status = $5`,
		change.Entry.Status,
		change.TransactionID,
		change.Entry.Timestamp,
		id,
		change.Expected)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrStatusChanged
	}

	if err := insertHistory(ctx, tx, id, change.Entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) history(ctx context.Context, id uuid.UUID) ([]d.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT recorded_at, status, note FROM order_history WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query order history: %w", err)
	}
	defer rows.Close()

	var history []d.HistoryEntry
	for rows.Next() {
		var entry d.HistoryEntry
		if err := rows.Scan(&entry.Timestamp, &entry.Status, &entry.Note); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history iteration error: %w", err)
	}
	return history, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, id uuid.UUID, entry d.HistoryEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_history (order_id, status, note, recorded_at) VALUES ($1, $2, $3, $4)`,
		id, entry.Status, entry.Note, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*d.Order, error) {
	var (
		order        d.Order
		itemsJSON    []byte
		shippingJSON []byte
	)
	err := s.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&itemsJSON,
		&order.Subtotal,
		&order.ShippingCost,
		&order.VATAmount,
		&order.TotalAmount,
		&order.Currency,
		&order.Payment.Method,
		&order.Payment.Status,
		&order.Payment.Amount,
		&order.Payment.TransactionID,
		&shippingJSON,
		&order.Delivery.Method,
		&order.Delivery.EstimatedDelivery,
		&order.OrderDate,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &order.Shipping); err != nil {
		return nil, fmt.Errorf("unmarshal shipping info: %w", err)
	}
	return &order, nil
}
