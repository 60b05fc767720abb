package grpc

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"google.golang.org/protobuf/types/known/structpb"
)

type OrderService struct {
	orUC   usecase.OrderUC
	logger logger.Logger
}

func NewOrderService(orUC usecase.OrderUC, logger logger.Logger) *OrderService {
	return &OrderService{orUC: orUC, logger: logger}
}

// CreateOrder принимает {"customer_id": n, "items": [{"product_id": n, "quantity": n}]}.
func (g *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.CreateOrder"

	createReq, err := toCreateOrderReq(req)
	if err != nil {
		g.logger.Warnf("%s: %v", op, err)
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}

	order, err := g.orUC.CreateOrder(ctx, createReq)
	if err != nil {
		if e.IsBusiness(err) {
			g.logger.Warnf("%s: %v", op, err)
		} else {
			g.logger.Errorf(e.Wrap(op, err), "%s", op)
		}
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}

	return orderToStruct(order)
}

// GetOrder принимает {"id": n}.
func (g *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.GetOrder"

	id, err := intField(req.GetFields(), "id")
	if err != nil {
		return nil, GRPCErrorResponse(e.Wrap(op, e.Invalid(err)))
	}

	order, err := g.orUC.GetOrder(ctx, id)
	if err != nil {
		g.logger.Warnf("%s: %v", op, err)
		return nil, GRPCErrorResponse(e.Wrap(op, err))
	}

	return orderToStruct(order)
}

func toCreateOrderReq(req *structpb.Struct) (*usecase.CreateOrderReq, error) {
	fields := req.GetFields()

	customerID, err := intField(fields, "customer_id")
	if err != nil {
		return nil, e.Invalid(err)
	}

	rawItems := fields["items"].GetListValue().GetValues()
	lines := make([]usecase.OrderLineReq, 0, len(rawItems))
	for i, raw := range rawItems {
		item := raw.GetStructValue()
		if item == nil {
			return nil, e.Invalid(fmt.Errorf("items[%d] must be an object", i))
		}

		productID, err := intField(item.GetFields(), "product_id")
		if err != nil {
			return nil, e.Invalid(fmt.Errorf("items[%d]: %w", i, err))
		}
		quantity, err := intField(item.GetFields(), "quantity")
		if err != nil {
			return nil, e.Invalid(fmt.Errorf("items[%d]: %w", i, err))
		}

		lines = append(lines, usecase.NewOrderLineReq(productID, quantity))
	}

	return usecase.NewCreateOrderReq(customerID, lines), nil
}
