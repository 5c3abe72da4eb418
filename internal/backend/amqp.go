package backend

import (
	"context"
	"fmt"

	"github.com/shaiso/scops/internal/mq"
)

// AMQP публикует units в очередь units.pending для удалённого пула обработчиков.
type AMQP struct {
	sender mq.Sender
}

// NewAMQP создаёт AMQP backend.
func NewAMQP(sender mq.Sender) (*AMQP, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: amqp sender", ErrMissingDependency)
	}
	return &AMQP{sender: sender}, nil
}

// Kind возвращает имя backend'а.
func (a *AMQP) Kind() string { return KindAMQP }

// Submit публикует unit и ждёт подтверждения брокера.
func (a *AMQP) Submit(ctx context.Context, s Submission) (Handle, error) {
	msg := mq.NewMessage(mq.MessageTypeUnitSubmitted, mq.UnitSubmittedPayload{
		RunID:        s.Tree.RunID(),
		ConfigPath:   s.ConfigPath,
		Line:         s.Unit.Line,
		OutputFolder: s.Tree.Root,
		RunMain:      s.Unit.RunMain,
		RunExtension: s.Unit.RunExtension,
		Extensions:   s.Unit.Extensions,
		SizeBytes:    s.SizeHint,
	})

	if err := a.sender.Publish(ctx, mq.ExchangeUnits, mq.RoutingKeySubmitted, msg); err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %w", ErrSubmissionFailed, s.Unit.Line, err)
	}
	return newHandle(KindAMQP, s, msg.ID), nil
}
