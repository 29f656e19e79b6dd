package events

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/association-finance/internal/model"
)

// DefaultBuffer задаёт размер очереди событий по умолчанию.
const DefaultBuffer = 256

const maxAttempts = 3

// Sender отправляет одно событие получателю.
type Sender interface {
	Send(ctx context.Context, e model.Event) (int, time.Duration, error)
}

// Dispatcher принимает события от сервиса и доставляет их в фоне.
// Без получателя события только журналируются.
type Dispatcher struct {
	sender Sender
	logger *zap.Logger
	queue  chan model.Event
}

// NewDispatcher создаёт диспетчер с очередью указанного размера.
func NewDispatcher(sender Sender, logger *zap.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender: sender,
		logger: logger,
		queue:  make(chan model.Event, buffer),
	}
}

// Publish ставит событие в очередь, не блокируя вызывающего.
// При переполненной очереди событие отбрасывается.
func (d *Dispatcher) Publish(ctx context.Context, e model.Event) {
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("event queue is full, dropping event",
			zap.String("event_id", e.ID.String()),
			zap.String("type", string(e.Type)),
			zap.Int64("entity_id", e.EntityID))
	}
}

// Run доставляет события до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e model.Event) {
	fields := []zap.Field{
		zap.String("event_id", e.ID.String()),
		zap.String("type", string(e.Type)),
		zap.Int64("entity_id", e.EntityID),
		zap.Int64("member_id", e.MemberID),
	}

	if d.sender == nil {
		d.logger.Info("event", fields...)
		return
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		statusCode, retryAfter, err := d.sender.Send(ctx, e)
		if err != nil {
			d.logger.Error("send event error", append(fields, zap.Error(err))...)
			return
		}
		if statusCode != http.StatusTooManyRequests {
			return
		}

		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	d.logger.Warn("event receiver keeps rate limiting, dropping event", fields...)
}
