// Package queue publishes reservation events to RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const QueueReservationConfirmed = "reservation.confirmed"

// ReservationConfirmed is the message body sent when a reservation is paid.
type ReservationConfirmed struct {
	ReservationID string    `json:"reservation_id"`
	SessionID     int64     `json:"session_id"`
	UserID        int64     `json:"user_id"`
	SeatIDs       []int64   `json:"seat_ids"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

func NewReservationConfirmed(r domain.Reservation) ReservationConfirmed {
	return ReservationConfirmed{
		ReservationID: r.ID.String(),
		SessionID:     r.SessionID,
		UserID:        r.UserID,
		SeatIDs:       r.SeatIDs,
		ConfirmedAt:   r.UpdatedAt.UTC(),
	}
}

// Publisher keeps one connection and channel open. Publishes are serialized
// because an amqp channel must not be used by several goroutines at once.
type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker and declares the durable queues.
func Dial(url string) (*Publisher, error) {
	const op = "queue.Dial"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}

	if _, err := ch.QueueDeclare(
		QueueReservationConfirmed,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: declare queue: %w", op, err)
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

func (p *Publisher) PublishReservationConfirmed(ctx context.Context, r domain.Reservation) error {
	const op = "queue.Publisher.PublishReservationConfirmed"

	body, err := json.Marshal(NewReservationConfirmed(r))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx,
		"", // default exchange
		QueueReservationConfirmed,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    r.ID.String(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.ch.Close()
	return p.conn.Close()
}
