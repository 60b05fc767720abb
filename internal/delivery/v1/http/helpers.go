package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/go-chi/chi/v5"
)

// Машиночитаемые виды ошибок в теле ответа
const (
	KindInvalidRequest    = "invalid_request"
	KindProductNotFound   = "product_not_found"
	KindInsufficientStock = "insufficient_stock"
	KindNotFound          = "not_found"
	KindConflict          = "conflict"
	KindRateLimited       = "rate_limited"
	KindStorageFailure    = "storage_failure"
	KindInternal          = "internal"
)

const maxRequestBodySize = 1 << 20

type ErrorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func NewErrorResponse(code int, kind, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// ToHTTPResponse сопоставляет ошибку usecase коду ответа, виду и сообщению для клиента.
// Ошибки товара внутри заказа (*e.ProductError) — это 400, а не 404: заказ некорректен.
func ToHTTPResponse(err error) (int, string, string) {
	var productErr *e.ProductError

	switch {
	case errors.Is(err, e.ErrMalformedRequestBody):
		return http.StatusBadRequest, KindInvalidRequest, e.ErrMalformedRequestBody.Error()
	case errors.Is(err, e.ErrInvalidRequest):
		return http.StatusBadRequest, KindInvalidRequest, invalidMessage(err)
	case errors.As(err, &productErr) && errors.Is(productErr, e.ErrInsufficientStock):
		return http.StatusBadRequest, KindInsufficientStock, productErr.Error()
	case errors.As(err, &productErr):
		return http.StatusBadRequest, KindProductNotFound, productErr.Error()
	case errors.Is(err, e.ErrProductNotFound):
		return http.StatusNotFound, KindNotFound, e.ErrProductNotFound.Error()
	case errors.Is(err, e.ErrOrderNotFound):
		return http.StatusNotFound, KindNotFound, e.ErrOrderNotFound.Error()
	case errors.Is(err, e.ErrSKUConflict):
		return http.StatusConflict, KindConflict, e.ErrSKUConflict.Error()
	case errors.Is(err, e.ErrRateLimited):
		return http.StatusTooManyRequests, KindRateLimited, e.ErrRateLimited.Error()
	case errors.Is(err, e.ErrStorageFailure):
		return http.StatusInternalServerError, KindStorageFailure, e.ErrStorageFailure.Error()
	default:
		return http.StatusInternalServerError, KindInternal, e.ErrInternalServerError.Error()
	}
}

// invalidMessage оставляет от ошибки валидации только причину, без префиксов операций.
func invalidMessage(err error) string {
	_, detail, ok := strings.Cut(err.Error(), e.ErrInvalidRequest.Error()+": ")
	if !ok || detail == "" {
		return e.ErrInvalidRequest.Error()
	}

	return detail
}

func WriteError(w http.ResponseWriter, err error) {
	code, kind, msg := ToHTTPResponse(err)
	if e.IsRetryable(err) || code == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}

	WriteSuccess(w, code, NewErrorResponse(code, kind, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса с ограничением размера.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return e.Wrap(err.Error(), e.ErrMalformedRequestBody)
	}

	return nil
}

// pathID разбирает {id} из пути. Нечисловой или неположительный id — ошибка валидации.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, e.Invalid(e.ErrInvalidID)
	}

	return id, nil
}
