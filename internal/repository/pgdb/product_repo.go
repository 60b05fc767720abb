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
)

const productColumns = `product_id, name, sku, description, price, quantity, created_at, updated_at`

// ProductRepo реализует каталог товаров поверх PostgreSQL.
type ProductRepo struct {
	pool DB
	conv converter.ProductConverter
}

func NewProductRepo(pool DB, conv converter.ProductConverter) *ProductRepo {
	return &ProductRepo{
		pool: pool,
		conv: conv,
	}
}

func (p *ProductRepo) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	model := p.conv.ToModel(product)
	query := `
		INSERT INTO products (name, sku, description, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + productColumns

	created, err := scanProduct(conn(ctx, p.pool).QueryRow(ctx, query,
		model.Name, model.SKU, model.Description, model.Price, model.Quantity,
	))
	if err != nil {
		if postgresDuplicate(err) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrSKUConflict)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(created), nil
}

func (p *ProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE product_id = $1`

	model, err := scanProduct(conn(ctx, p.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(model), nil
}

func (p *ProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY product_id`

	rows, err := conn(ctx, p.pool).Query(ctx, query)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	models := make([]converter.ProductModel, 0)
	for rows.Next() {
		model, err := scanProduct(rows)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		models = append(models, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToArrEntity(models), nil
}

// Update применяет частичное обновление: NULL-параметры оставляют колонку без изменений.
// Запись quantity идёт мимо блокировок оформления заказа.
func (p *ProductRepo) Update(ctx context.Context, id int64, patch *domain.ProductPatch) (*domain.Product, error) {
	query := `
		UPDATE products SET
			name        = COALESCE($2, name),
			sku         = COALESCE($3, sku),
			description = COALESCE($4, description),
			price       = COALESCE($5, price),
			quantity    = COALESCE($6, quantity),
			updated_at  = NOW()
		WHERE product_id = $1
		RETURNING ` + productColumns

	model, err := scanProduct(conn(ctx, p.pool).QueryRow(ctx, query,
		id, patch.Name, patch.SKU, patch.Description, patch.Price, patch.Quantity,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}
		if postgresDuplicate(err) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrSKUConflict)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(model), nil
}

// Delete удаляет товар. Позиции уже оформленных заказов сохраняют product_id и снимок цены.
func (p *ProductRepo) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, p.pool).Exec(ctx, `DELETE FROM products WHERE product_id = $1`, id)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	return nil
}

// GetForUpdate читает товар и держит эксклюзивную блокировку строки до конца транзакции.
func (p *ProductRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE product_id = $1 FOR UPDATE`

	model, err := scanProduct(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), classify(err))
	}

	return p.conv.ToEntity(model), nil
}

// DecrementStock списывает остаток. Условие quantity >= $1 не даёт уйти в минус,
// даже если строка не была заблокирована заранее.
func (p *ProductRepo) DecrementStock(ctx context.Context, id int64, quantity int64) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		UPDATE products
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE product_id = $2 AND quantity >= $1
	`

	tag, err := tx.Exec(ctx, query, quantity, id)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), classify(err))
	}

	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrInsufficientStock)
	}

	return nil
}

func scanProduct(row pgx.Row) (*converter.ProductModel, error) {
	var model converter.ProductModel
	if err := row.Scan(
		&model.ID, &model.Name, &model.SKU, &model.Description,
		&model.Price, &model.Quantity, &model.CreatedAt, &model.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &model, nil
}
