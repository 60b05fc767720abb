package http

import (
	"context"
	"net/http"
	"time"

	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/DRSN-tech/storefront/pkg/metrics"
)

type OrderHandler struct {
	orderUsecase usecase.OrderUC
	logger       logger.Logger
	metrics      *metrics.ServerMetrics
	timeout      time.Duration
}

func NewOrderHandler(orderUsecase usecase.OrderUC, logger logger.Logger, metrics *metrics.ServerMetrics, timeout time.Duration) *OrderHandler {
	return &OrderHandler{
		orderUsecase: orderUsecase,
		logger:       logger,
		metrics:      metrics,
		timeout:      timeout,
	}
}

// createOrder
//
//	@Summary		Оформление заказа
//	@Description	Атомарно списывает остатки и фиксирует цены товаров на момент оформления
//	@Tags			orders
//	@Accept			json
//	@Produce		json
//	@Param			order	body		CreateOrderRequest	true	"Покупатель и позиции"
//	@Success		201		{object}	OrderResponse
//	@Failure		400		{object}	ErrorResponse	"Ошибка валидации, товар не найден или не хватает остатка"
//	@Failure		429		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/orders [post]
func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warnf("%d %s: %v", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err)
		h.metrics.ObserveOrder("rejected")
		WriteError(w, err)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	order, err := h.orderUsecase.CreateOrder(ctx, req.toUsecase())
	if err != nil {
		if e.IsBusiness(err) {
			h.logger.Warnf("order rejected: %v", err)
			h.metrics.ObserveOrder("rejected")
		} else {
			h.logger.Errorf(err, "order failed")
			h.metrics.ObserveOrder("failed")
		}
		WriteError(w, err)
		return
	}

	h.metrics.ObserveOrder("created")
	WriteSuccess(w, http.StatusCreated, toOrderResponse(order))
}

// listOrders
//
//	@Summary	Список заказов
//	@Tags		orders
//	@Produce	json
//	@Success	200	{array}		OrderResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/orders [get]
func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderUsecase.ListOrders(r.Context())
	if err != nil {
		h.logger.Errorf(err, "list orders failed")
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toArrOrderResponse(orders))
}

// getOrder
//
//	@Summary	Заказ с позициями
//	@Tags		orders
//	@Produce	json
//	@Param		id	path		int	true	"ID заказа"
//	@Success	200	{object}	OrderResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/orders/{id} [get]
func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	order, err := h.orderUsecase.GetOrder(r.Context(), id)
	if err != nil {
		h.logger.Warnf("get order %d: %v", id, err)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toOrderResponse(order))
}

// updateOrderStatus
//
//	@Summary	Смена статуса заказа
//	@Tags		orders
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int							true	"ID заказа"
//	@Param		status	body		UpdateOrderStatusRequest	true	"Новый статус"
//	@Success	200		{object}	OrderResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/orders/{id} [put]
func (h *OrderHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req UpdateOrderStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	order, err := h.orderUsecase.UpdateOrderStatus(r.Context(), usecase.NewUpdateOrderStatusReq(id, req.Status))
	if err != nil {
		h.logger.Warnf("update order %d status: %v", id, err)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toOrderResponse(order))
}

// deleteOrder
//
//	@Summary		Удаление заказа
//	@Description	Удаляет заказ с позициями. Остатки товаров не восстанавливаются
//	@Tags			orders
//	@Produce		json
//	@Param			id	path		int	true	"ID заказа"
//	@Success		200	{object}	MessageResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/orders/{id} [delete]
func (h *OrderHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.orderUsecase.DeleteOrder(r.Context(), id); err != nil {
		h.logger.Warnf("delete order %d: %v", id, err)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, MessageResponse{Message: "order deleted"})
}
