package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeType = "topic"

	RoutingKeyStockMoved = "stock.moved"
)

// MovementEvent is published once per committed movement call.
type MovementEvent struct {
	EventType  string        `json:"event_type"`
	MovementID string        `json:"movement_id"`
	ItemID     string        `json:"item_id"`
	SKU        string        `json:"sku"`
	Kind       string        `json:"kind"`
	Quantity   int           `json:"quantity"`
	Previous   int           `json:"previous_quantity"`
	New        int           `json:"new_quantity"`
	ActorID    string        `json:"actor_id,omitempty"`
	Touched    []TouchedItem `json:"touched"`
	Timestamp  time.Time     `json:"timestamp"`
}

type TouchedItem struct {
	ItemID   string `json:"item_id"`
	Previous int    `json:"previous_quantity"`
	New      int    `json:"new_quantity"`
}

type Publisher interface {
	PublishMovement(ctx context.Context, evt *MovementEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishMovement(context.Context, *MovementEvent) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}

type RabbitPublisher struct {
	mu          sync.Mutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	serviceName string
}

func NewRabbitPublisher(url, exchange, serviceName string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &RabbitPublisher{
		conn:        conn,
		channel:     ch,
		exchange:    exchange,
		serviceName: serviceName,
	}, nil
}

func (p *RabbitPublisher) PublishMovement(ctx context.Context, evt *MovementEvent) error {
	if evt.EventType == "" {
		evt.EventType = RoutingKeyStockMoved
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKeyStockMoved,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			AppId:        p.serviceName,
			Timestamp:    evt.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (p *RabbitPublisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *RabbitPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
