package usecase

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/google/uuid"
)

type OutboxStatus string

const (
	Pending    OutboxStatus = "pending"
	Processing OutboxStatus = "processing"
	Processed  OutboxStatus = "processed"
	Failed     OutboxStatus = "failed"
)

type OutboxEventType string

const (
	OrderCreated       OutboxEventType = "order.created"
	OrderStatusChanged OutboxEventType = "order.status_changed"
	OrderDeleted       OutboxEventType = "order.deleted"
)

// OutboxEvent — событие, записанное в одной транзакции с изменением заказа
// и отправляемое в Kafka воркером.
type OutboxEvent struct {
	ID          int64
	EventID     string
	EventType   OutboxEventType
	AggregateID int64
	Payload     []byte
	Status      OutboxStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Key — ключ сообщения в Kafka: события одного заказа попадают в одну партицию.
func (o *OutboxEvent) Key() string {
	return strconv.FormatInt(o.AggregateID, 10)
}

// OrderEventPayload — тело события о заказе.
type OrderEventPayload struct {
	EventID    string           `json:"event_id"`
	EventType  OutboxEventType  `json:"event_type"`
	OrderID    int64            `json:"order_id"`
	CustomerID int64            `json:"customer_id,omitempty"`
	Status     string           `json:"status,omitempty"`
	Total      string           `json:"total,omitempty"`
	Items      []OrderEventItem `json:"items,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

type OrderEventItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

// NewOrderEvent собирает событие по заказу. Для удаления достаточно идентификатора.
func NewOrderEvent(eventType OutboxEventType, order *domain.Order) (*OutboxEvent, error) {
	eventID := uuid.NewString()
	now := time.Now().UTC()

	payload := OrderEventPayload{
		EventID:    eventID,
		EventType:  eventType,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		OccurredAt: now,
	}
	if eventType == OrderCreated {
		payload.Total = domain.FormatMoney(order.Total)
		payload.Items = make([]OrderEventItem, 0, len(order.Items))
		for _, item := range order.Items {
			payload.Items = append(payload.Items, OrderEventItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice.String(),
				LineTotal: domain.FormatMoney(item.LineTotal),
			})
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		EventID:     eventID,
		EventType:   eventType,
		AggregateID: order.ID,
		Payload:     data,
		Status:      Pending,
		CreatedAt:   now,
	}, nil
}
