package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/movement"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventSaleCreated = "SaleCreated"
	systemActor      = "system"
)

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type SaleListener struct {
	consumer MessageReader
	uc       movement.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewSaleListener(consumer MessageReader, uc movement.UseCase, logger logger.ZapLogger) *SaleListener {
	return &SaleListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *SaleListener) Start(ctx context.Context) {
	l.logger.Info("Starting sale Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping sale Kafka listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.backoff):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type SaleCreatedEvent struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   SalePayload `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type SalePayload struct {
	OrderID string            `json:"order_id"`
	Items   []SaleItemPayload `json:"items"`
}

type SaleItemPayload struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// processMessage consumes stock for every sold line. Lines are independent: a failing line is
// logged and the rest of the sale is still applied.
func (l *SaleListener) processMessage(ctx context.Context, value []byte) {
	var event SaleCreatedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != EventSaleCreated {
		return
	}

	l.logger.Info("Processing SaleCreated event", zap.String("order_id", event.Payload.OrderID))

	for _, item := range event.Payload.Items {
		input := &dto.MovementInput{
			SKU:      item.SKU,
			Kind:     model.MovementOut,
			Quantity: item.Quantity,
			Reason:   "sale " + event.Payload.OrderID,
			ActorID:  systemActor,
		}

		if _, err := l.uc.ApplyMovement(ctx, input); err != nil {
			l.logger.Error("Failed to consume stock for sale item",
				zap.String("order_id", event.Payload.OrderID),
				zap.String("sku", item.SKU),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}
