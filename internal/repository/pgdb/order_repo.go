package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jimlawless/whereami"
	"github.com/shopspring/decimal"
)

const orderColumns = `order_id, customer_id, status, total, created_at`

// OrderRepo реализует журнал заказов поверх PostgreSQL.
type OrderRepo struct {
	pool DB
	conv converter.OrderConverter
}

func NewOrderRepo(pool DB, conv converter.OrderConverter) *OrderRepo {
	return &OrderRepo{
		pool: pool,
		conv: conv,
	}
}

// Create вставляет заголовок заказа. Вызывается только внутри транзакции оформления.
func (o *OrderRepo) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	model := o.conv.ToModel(order)
	query := `
		INSERT INTO orders (customer_id, status, total)
		VALUES ($1, $2, $3)
		RETURNING ` + orderColumns

	created, err := scanOrder(tx.QueryRow(ctx, query, model.CustomerID, model.Status, model.Total))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), classify(err))
	}

	return o.conv.ToEntity(created, nil), nil
}

func (o *OrderRepo) AddItem(ctx context.Context, item *domain.OrderItem) (*domain.OrderItem, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	model := o.conv.ItemToModel(item)
	query := `
		INSERT INTO order_items (order_id, product_id, unit_price, quantity, line_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING order_item_id
	`

	if err := tx.QueryRow(ctx, query,
		model.OrderID, model.ProductID, model.UnitPrice, model.Quantity, model.LineTotal,
	).Scan(&model.ID); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), classify(err))
	}

	return o.conv.ItemToEntity(model), nil
}

func (o *OrderRepo) UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	tag, err := tx.Exec(ctx, `UPDATE orders SET total = $2 WHERE order_id = $1`, orderID, total)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), classify(err))
	}

	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrOrderNotFound)
	}

	return nil
}

// GetByID возвращает заказ с позициями. Внутри транзакции видит её незакоммиченные записи.
func (o *OrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	db := conn(ctx, o.pool)

	model, err := scanOrder(db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrOrderNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	items, err := o.items(ctx, db, id)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return o.conv.ToEntity(model, items), nil
}

// List возвращает заголовки заказов без позиций.
func (o *OrderRepo) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := conn(ctx, o.pool).Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_id`)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	models := make([]converter.OrderModel, 0)
	for rows.Next() {
		model, err := scanOrder(rows)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		models = append(models, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return o.conv.ToArrEntity(models), nil
}

func (o *OrderRepo) UpdateStatus(ctx context.Context, id int64, status string) (*domain.Order, error) {
	db := conn(ctx, o.pool)
	query := `UPDATE orders SET status = $2 WHERE order_id = $1 RETURNING ` + orderColumns

	model, err := scanOrder(db.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrOrderNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), classify(err))
	}

	items, err := o.items(ctx, db, id)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return o.conv.ToEntity(model, items), nil
}

// Delete удаляет заказ, позиции удаляются каскадно.
func (o *OrderRepo) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, o.pool).Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, id)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), classify(err))
	}

	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrOrderNotFound)
	}

	return nil
}

func (o *OrderRepo) items(ctx context.Context, db DB, orderID int64) ([]converter.OrderItemModel, error) {
	query := `
		SELECT oi.order_item_id, oi.order_id, oi.product_id, p.name,
		       oi.unit_price, oi.quantity, oi.line_total
		FROM order_items oi
		LEFT JOIN products p ON p.product_id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.order_item_id
	`

	rows, err := db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]converter.OrderItemModel, 0)
	for rows.Next() {
		var item converter.OrderItemModel
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.UnitPrice, &item.Quantity, &item.LineTotal,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*converter.OrderModel, error) {
	var model converter.OrderModel
	if err := row.Scan(&model.ID, &model.CustomerID, &model.Status, &model.Total, &model.CreatedAt); err != nil {
		return nil, err
	}

	return &model, nil
}
