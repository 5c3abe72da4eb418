package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeUnits         Exchange = "scops.units"
	ExchangeNotifications Exchange = "scops.notifications"
)

// Queues — имена очередей.
const (
	QueueUnitsPending         Queue = "units.pending"
	QueueNotificationsPending Queue = "notifications.pending"
)

// Routing keys.
const (
	RoutingKeySubmitted RoutingKey = "submitted"
	RoutingKeyNotify    RoutingKey = "notify"
)

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		bindings := []struct {
			exchange   Exchange
			queue      Queue
			routingKey RoutingKey
		}{
			{ExchangeUnits, QueueUnitsPending, RoutingKeySubmitted},
			{ExchangeNotifications, QueueNotificationsPending, RoutingKeyNotify},
		}

		for _, b := range bindings {
			err := ch.ExchangeDeclare(
				string(b.exchange), // name
				"direct",           // type
				true,               // durable
				false,              // auto-deleted
				false,              // internal
				false,              // no-wait
				nil,                // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
			}

			_, err = ch.QueueDeclare(
				string(b.queue), // name
				true,            // durable
				false,           // delete when unused
				false,           // exclusive
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}

			err = ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}
