package grpc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/pkg/e"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func GRPCErrorResponse(err error) error {
	var productErr *e.ProductError

	switch {
	case errors.Is(err, e.ErrInvalidRequest), errors.Is(err, e.ErrMalformedRequestBody):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &productErr) && errors.Is(productErr, e.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, productErr.Error())
	case errors.As(err, &productErr):
		return status.Error(codes.NotFound, productErr.Error())
	case errors.Is(err, e.ErrOrderNotFound):
		return status.Error(codes.NotFound, e.ErrOrderNotFound.Error())
	case e.IsRetryable(err):
		return status.Error(codes.Aborted, e.ErrTransientConflict.Error())
	case errors.Is(err, e.ErrStorageFailure):
		return status.Error(codes.Unavailable, e.ErrStorageFailure.Error())
	default:
		return status.Error(codes.Internal, e.ErrInternalServerError.Error())
	}
}

// intField достаёт целое из Struct: числа в нём всегда float64.
func intField(fields map[string]*structpb.Value, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		return 0, fmt.Errorf("%s must be an integer", name)
	}

	return int64(n.NumberValue), nil
}

func orderToStruct(order *domain.Order) (*structpb.Struct, error) {
	items := make([]any, 0, len(order.Items))
	for _, item := range order.Items {
		line := map[string]any{
			"id":         float64(item.ID),
			"product_id": float64(item.ProductID),
			"unit_price": item.UnitPrice.String(),
			"quantity":   float64(item.Quantity),
			"line_total": domain.FormatMoney(item.LineTotal),
		}
		if item.ProductName != nil {
			line["product_name"] = *item.ProductName
		}
		items = append(items, line)
	}

	return structpb.NewStruct(map[string]any{
		"id":          float64(order.ID),
		"customer_id": float64(order.CustomerID),
		"status":      order.Status,
		"total":       domain.FormatMoney(order.Total),
		"created_at":  order.CreatedAt.UTC().Format(time.RFC3339),
		"items":       items,
	})
}
