package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	orderNumberConstraint = "orders_order_number_key"
	orderColumns          = `id, order_number, product_name, quantity, total_value, status, created_at`
)

// sortColumns сопоставляет поля сортировки со столбцами. В SQL попадают только значения из этой таблицы.
var sortColumns = map[domain.SortField]string{
	domain.SortByID:          "id",
	domain.SortByCreatedAt:   "created_at",
	domain.SortByOrderNumber: "order_number",
	domain.SortByTotalValue:  "total_value",
	domain.SortByStatus:      "status",
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		total  decimal.Decimal
	)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &order.ProductName, &order.Quantity,
		&total, &status, &order.CreatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.TotalValue = total
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_number = $1
	`, orderNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order by number: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if order.ID == 0 {
		return r.insert(ctx, order)
	}

	saved, err := scanOrder(r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $1
		WHERE id = $2
		RETURNING `+orderColumns,
		string(order.Status), order.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return saved, nil
}

// insert полагается на UNIQUE(order_number): проверка и вставка выполняются одной командой.
func (r *orderRepository) insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	saved, err := scanOrder(r.db.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, product_name, quantity, total_value, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+orderColumns,
		order.OrderNumber, order.ProductName, order.Quantity,
		order.TotalValue, string(order.Status), order.CreatedAt,
	))
	if err != nil {
		if isUniqueViolation(err, orderNumberConstraint) {
			return domain.Order{}, domain.ErrOrderNumberConflict
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return saved, nil
}

func (r *orderRepository) Delete(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, order.ID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) FindAll(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	column, ok := sortColumns[page.Sort]
	if !ok {
		column = sortColumns[domain.SortByID]
	}
	direction := "ASC"
	if page.Desc {
		direction = "DESC"
	}

	var (
		where string
		args  []any
	)
	if page.Status != "" {
		where = "WHERE status = $1"
		args = append(args, string(page.Status))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("count orders: %w", err)
	}
	// Переполненное смещение означает страницу за концом выборки.
	if page.Offset() < 0 {
		return domain.NewPage[domain.Order](nil, page, total), nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY %s %s, id %s
		LIMIT $%d OFFSET $%d
	`, orderColumns, where, column, direction, direction, len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, page.Size)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("iterate order rows: %w", err)
	}

	return domain.NewPage(orders, page, total), nil
}

func (r *orderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.OrderStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

// isUniqueViolation проверяет код 23505. Пустой constraint совпадает с любым ограничением.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
