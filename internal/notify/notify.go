// Package notify отправляет уведомления пользователю о состоянии run.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/mq"
)

// ErrNoRecipient — у run не указан адрес.
var ErrNoRecipient = errors.New("notification has no recipient")

// Notifier отправляет одно уведомление.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Render возвращает тему и текст письма.
func Render(n domain.Notification) (subject, body string) {
	var b strings.Builder

	switch n.Reason {
	case domain.ReasonAccepted:
		subject = fmt.Sprintf("ARSF processing request %s accepted", n.ProjectCode)
		fmt.Fprintf(&b, "Your processing request for project %s has been received and is now queued.\n", n.ProjectCode)
	case domain.ReasonDEMCoverage:
		subject = fmt.Sprintf("ARSF processing request %s: DEM does not cover navigation", n.ProjectCode)
		fmt.Fprintf(&b, "The DEM you uploaded for project %s does not cover the area of the navigation data.\n", n.ProjectCode)
		b.WriteString("Please upload a DEM covering the full flight area and resubmit.\n")
	case domain.ReasonDEMMissing:
		subject = fmt.Sprintf("ARSF processing request %s: DEM not found", n.ProjectCode)
		fmt.Fprintf(&b, "The DEM you said you would provide for project %s could not be found.\n", n.ProjectCode)
	default:
		subject = fmt.Sprintf("ARSF processing request %s: error (%s)", n.ProjectCode, n.Reason)
		fmt.Fprintf(&b, "Processing for project %s stopped before it started: %s.\n", n.ProjectCode, n.Reason)
	}
	fmt.Fprintf(&b, "\nProcessing folder: %s\n", n.OutputLocation)

	return subject, b.String()
}

// LogNotifier только пишет уведомление в лог.
type LogNotifier struct {
	Logger *slog.Logger
}

// Send пишет уведомление в лог. Уведомления об ошибках идут уровнем WARN.
func (l LogNotifier) Send(ctx context.Context, n domain.Notification) error {
	subject, _ := Render(n)
	level := slog.LevelInfo
	if n.IsError() {
		level = slog.LevelWarn
	}
	l.Logger.Log(ctx, level, "notification",
		"recipient", n.Recipient,
		"reason", string(n.Reason),
		"subject", subject,
	)
	return nil
}

// BrokerNotifier публикует уведомление в RabbitMQ для почтового сервиса.
type BrokerNotifier struct {
	Sender mq.Sender
}

// Send публикует уведомление.
func (b BrokerNotifier) Send(ctx context.Context, n domain.Notification) error {
	if n.Recipient == "" {
		return ErrNoRecipient
	}
	msg := mq.NewMessage(mq.MessageTypeNotification, mq.NotificationPayload{
		Recipient:      n.Recipient,
		OutputLocation: n.OutputLocation,
		ProjectCode:    n.ProjectCode,
		Reason:         string(n.Reason),
	})
	if err := b.Sender.Publish(ctx, mq.ExchangeNotifications, mq.RoutingKeyNotify, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
