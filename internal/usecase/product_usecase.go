package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

// ProductUseCase реализует CRUD каталога товаров с кэшированием чтения в Redis.
type ProductUseCase struct {
	productRepo ProductRepository
	cacheRepo   CacheRepository
	logger      logger.Logger
}

func NewProductUC(productRepo ProductRepository, cacheRepo CacheRepository, logger logger.Logger) *ProductUseCase {
	return &ProductUseCase{
		productRepo: productRepo,
		cacheRepo:   cacheRepo,
		logger:      logger,
	}
}

func (p *ProductUseCase) CreateProduct(ctx context.Context, req *CreateProductReq) (*domain.Product, error) {
	const op = "ProductUseCase.CreateProduct"

	name, sku := strings.TrimSpace(req.Name), strings.TrimSpace(req.SKU)
	if name == "" || sku == "" {
		return nil, e.Wrap(op, e.Invalid(e.ErrMissingFields))
	}
	if err := validatePrice(req.Price); err != nil {
		return nil, e.Wrap(op, err)
	}
	if req.Quantity < 0 {
		return nil, e.Wrap(op, e.Invalid(e.ErrQuantityNegative))
	}

	product, err := p.productRepo.Create(ctx, domain.NewProduct(name, sku, req.Description, req.Price, req.Quantity))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return product, nil
}

// GetProduct возвращает товар, сначала из кэша, затем из БД с фоновым прогревом кэша.
// Поколение читается до похода в БД: если товар успел измениться, прогрев будет отброшен.
func (p *ProductUseCase) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	const op = "ProductUseCase.GetProduct"

	if id <= 0 {
		return nil, e.Wrap(op, e.Invalid(e.ErrInvalidID))
	}

	cached, gens, err := p.cacheRepo.GetProducts(ctx, []int64{id})
	if err != nil {
		p.logger.Warnf("Product cache unavailable: %v", e.Wrap(op, err))
	} else if product, ok := cached[id]; ok {
		return &product, nil
	}

	product, err := p.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Без поколения прогрев небезопасен
	if gens == nil {
		return product, nil
	}

	toCache := *product
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		if err := p.cacheRepo.SetProducts(bgCtx, []domain.Product{toCache}, gens); err != nil {
			p.logger.Warnf("Failed to cache product in background: %v", e.Wrap(op, err))
		}
	}()

	return product, nil
}

func (p *ProductUseCase) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const op = "ProductUseCase.ListProducts"

	products, err := p.productRepo.List(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return products, nil
}

// UpdateProduct частично обновляет товар. Запись quantity здесь — административная правка
// в обход блокировок оформления заказа.
func (p *ProductUseCase) UpdateProduct(ctx context.Context, req *UpdateProductReq) (*domain.Product, error) {
	const op = "ProductUseCase.UpdateProduct"

	if req.ID <= 0 {
		return nil, e.Wrap(op, e.Invalid(e.ErrInvalidID))
	}
	if err := validatePatch(&req.Patch); err != nil {
		return nil, e.Wrap(op, err)
	}

	product, err := p.productRepo.Update(ctx, req.ID, &req.Patch)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	p.invalidate(ctx, op, req.ID)
	return product, nil
}

func (p *ProductUseCase) DeleteProduct(ctx context.Context, id int64) error {
	const op = "ProductUseCase.DeleteProduct"

	if id <= 0 {
		return e.Wrap(op, e.Invalid(e.ErrInvalidID))
	}

	if err := p.productRepo.Delete(ctx, id); err != nil {
		return e.Wrap(op, err)
	}

	p.invalidate(ctx, op, id)
	return nil
}

// invalidate удаляет товар из кэша. Ошибки кэша не влияют на результат операции.
func (p *ProductUseCase) invalidate(ctx context.Context, op string, id int64) {
	if err := p.cacheRepo.DeleteProducts(ctx, []int64{id}); err != nil {
		p.logger.Warnf("Failed to delete products from cache: %v", e.Wrap(op, err))
	}
}

func validatePatch(patch *domain.ProductPatch) error {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return e.Invalid(e.ErrMissingFields)
	}
	if patch.SKU != nil && strings.TrimSpace(*patch.SKU) == "" {
		return e.Invalid(e.ErrMissingFields)
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return err
		}
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		return e.Invalid(e.ErrQuantityNegative)
	}

	return nil
}

// validatePrice: цена неотрицательна и не точнее PricePrecision знаков.
func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return e.Invalid(e.ErrInvalidPrice)
	}

	if !price.Equal(price.Truncate(domain.PricePrecision)) {
		return e.Invalid(e.ErrPricePrecision)
	}

	return nil
}
