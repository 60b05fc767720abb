package e

import (
	"errors"
	"fmt"
)

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Ошибки оформления заказа
	ErrInvalidRequest    = fmt.Errorf("invalid request")
	ErrProductNotFound   = fmt.Errorf("product not found")
	ErrInsufficientStock = fmt.Errorf("insufficient stock")
	ErrStorageFailure    = fmt.Errorf("storage failure")

	// 400 Bad Request
	ErrStatusBadRequest     = fmt.Errorf("bad request")
	ErrCustomerIDRequired   = fmt.Errorf("customer_id is required")
	ErrItemsRequired        = fmt.Errorf("items are required")
	ErrInvalidProductID     = fmt.Errorf("product_id must be positive")
	ErrQuantityNotPositive  = fmt.Errorf("quantity must be positive")
	ErrMissingFields        = fmt.Errorf("name and sku required")
	ErrInvalidPrice         = fmt.Errorf("price must be a non-negative number")
	ErrPricePrecision       = fmt.Errorf("price must have at most 4 decimal places")
	ErrQuantityNegative     = fmt.Errorf("quantity must not be negative")
	ErrStatusRequired       = fmt.Errorf("status required")
	ErrInvalidID            = fmt.Errorf("invalid id")
	ErrMalformedRequestBody = fmt.Errorf("malformed request body")

	// 404 Not Found
	ErrOrderNotFound = fmt.Errorf("order not found")

	// 409 Conflict
	ErrSKUConflict = fmt.Errorf("SKU must be unique")

	// 429 Too Many Requests
	ErrRateLimited = fmt.Errorf("too many requests")

	// 500 Internal Server Error
	ErrInternalServerError  = fmt.Errorf("internal server error")
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")

	// Конфликт блокировок в БД (deadlock, serialization failure), запрос можно повторить
	ErrTransientConflict = fmt.Errorf("transient storage conflict")
)

// ProductError описывает нарушение бизнес-правила, относящееся к конкретному товару.
// Kind — ErrProductNotFound или ErrInsufficientStock.
type ProductError struct {
	Kind      error
	ProductID int64
}

func NewProductError(kind error, productID int64) *ProductError {
	return &ProductError{Kind: kind, ProductID: productID}
}

func (p *ProductError) Error() string {
	if errors.Is(p.Kind, ErrInsufficientStock) {
		return fmt.Sprintf("insufficient stock for product %d", p.ProductID)
	}

	return fmt.Sprintf("product %d not found", p.ProductID)
}

func (p *ProductError) Unwrap() error {
	return p.Kind
}

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Invalid помечает ошибку валидации как ErrInvalidRequest, сохраняя исходную причину.
func Invalid(err error) error {
	if errors.Is(err, ErrInvalidRequest) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// Storage помечает инфраструктурную ошибку как ErrStorageFailure.
// Бизнес-ошибки и уже помеченные ошибки возвращаются без изменений.
func Storage(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrStorageFailure) || IsBusiness(err) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}

// IsRetryable сообщает, можно ли безопасно повторить запрос целиком.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientConflict)
}

// IsBusiness сообщает, является ли ошибка нарушением правил заказа, а не сбоем хранилища.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInsufficientStock)
}
