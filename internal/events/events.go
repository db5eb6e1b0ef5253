package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/safar/storefront/internal/models"
	kafkaGo "github.com/segmentio/kafka-go"
)

const (
	TopicOrderPlaced        = "orders.placed"
	TopicOrderStatusChanged = "orders.status_changed"
)

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafkaGo.Writer
	prefix string
}

// NewKafkaPublisher returns a publisher that keys messages by aggregate id so
// events for one order stay in one partition.
func NewKafkaPublisher(brokers []string, topicPrefix string) Publisher {
	return &kafkaPublisher{
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.Hash{},
			RequiredAcks:           kafkaGo.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
		},
		prefix: topicPrefix,
	}
}

func (k *kafkaPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.writer.WriteMessages(ctx, kafkaGo.Message{
		Topic: k.prefix + topic,
		Key:   []byte(key),
		Value: payload,
	})
}

func (k *kafkaPublisher) Close() error {
	return k.writer.Close()
}

type nopPublisher struct{}

// NewNopPublisher discards every event; used when no brokers are configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) PublishEvent(context.Context, string, string, any) error { return nil }
func (nopPublisher) Close() error                                            { return nil }

type OrderLine struct {
	ProductID       int64 `json:"productId"`
	Quantity        int   `json:"quantity"`
	PriceAtPurchase int64 `json:"priceAtPurchase"`
}

type OrderPlaced struct {
	OrderID    int64       `json:"orderId"`
	UserID     int64       `json:"userId"`
	TotalPrice int64       `json:"totalPrice"`
	Items      []OrderLine `json:"items"`
	PlacedAt   time.Time   `json:"placedAt"`
}

type OrderStatusChanged struct {
	OrderID   int64              `json:"orderId"`
	UserID    int64              `json:"userId"`
	Status    models.OrderStatus `json:"status"`
	SlipURL   *string            `json:"slipUrl,omitempty"`
	ChangedAt time.Time          `json:"changedAt"`
}

// OrderNotifier announces committed order changes. Failures are logged and
// swallowed: the database is the source of truth and the change has already
// been committed when these run.
type OrderNotifier struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewOrderNotifier(publisher Publisher, logger *slog.Logger) *OrderNotifier {
	return &OrderNotifier{publisher: publisher, logger: logger}
}

func (n *OrderNotifier) OrderPlaced(ctx context.Context, order *models.Order) {
	event := OrderPlaced{
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice,
		Items:      make([]OrderLine, 0, len(order.Items)),
		PlacedAt:   order.CreatedAt,
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, OrderLine{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}
	n.publish(ctx, TopicOrderPlaced, order.ID, event)
}

func (n *OrderNotifier) StatusChanged(ctx context.Context, order *models.Order) {
	n.publish(ctx, TopicOrderStatusChanged, order.ID, OrderStatusChanged{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Status:    order.Status,
		SlipURL:   order.SlipURL,
		ChangedAt: order.UpdatedAt,
	})
}

func (n *OrderNotifier) publish(ctx context.Context, topic string, orderID int64, event any) {
	if err := n.publisher.PublishEvent(ctx, topic, strconv.FormatInt(orderID, 10), event); err != nil {
		n.logger.Error("Failed to publish order event", "topic", topic, "order_id", orderID, "err", err)
	}
}
