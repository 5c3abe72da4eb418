package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConfirmed — брокер не подтвердил публикацию (nack).
var ErrNotConfirmed = errors.New("publish not confirmed")

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeUnitSubmitted MessageType = "unit.submitted"
	MessageTypeNotification  MessageType = "notification.requested"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт конверт с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// UnitSubmittedPayload — unit для удалённого обработчика.
type UnitSubmittedPayload struct {
	RunID        string   `json:"run_id"`
	ConfigPath   string   `json:"config_path"`
	Line         string   `json:"line"`
	OutputFolder string   `json:"output_folder"`
	RunMain      bool     `json:"run_main"`
	RunExtension bool     `json:"run_extension"`
	Extensions   []string `json:"extensions,omitempty"`
	SizeBytes    int64    `json:"size_bytes,omitempty"`
}

// NotificationPayload — письмо для почтового сервиса.
type NotificationPayload struct {
	Recipient      string `json:"recipient"`
	OutputLocation string `json:"output_location"`
	ProjectCode    string `json:"project_code"`
	Reason         string `json:"reason,omitempty"`
}

// Sender — то, что нужно потребителям транспорта. Реализуется Publisher.
type Sender interface {
	Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение и ждёт подтверждения брокера.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			true,               // mandatory
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm %s/%s: %w", exchange, routingKey, err)
		}
		if !acked {
			return fmt.Errorf("%w: %s/%s", ErrNotConfirmed, exchange, routingKey)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}
