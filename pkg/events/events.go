package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tourbase/experience-bookings/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Slot events
	SlotCreated = "slot.created"

	// Reservation events
	ReservationCreated   = "reservation.created"
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
	ReservationExpired   = "reservation.expired"

	// Voucher delivery events
	VoucherDeliveryScheduled = "voucher.delivery.scheduled"
	VoucherSent              = "voucher.sent"
)

type SlotCreatedEvent struct {
	SlotID       int64     `json:"slot_id"`
	ExperienceID int64     `json:"experience_id"`
	StartUTC     time.Time `json:"start_utc"`
	EndUTC       time.Time `json:"end_utc"`
	Total        int       `json:"capacity_total"`
}

type ReservationEvent struct {
	ReservationID int64  `json:"reservation_id"`
	ExperienceID  int64  `json:"experience_id"`
	SlotID        *int64 `json:"slot_id,omitempty"`
	OrderID       int64  `json:"order_id"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
}

type ReservationExpiredEvent struct {
	ReservationID int64     `json:"reservation_id"`
	ExperienceID  int64     `json:"experience_id"`
	SlotID        *int64    `json:"slot_id,omitempty"`
	Quantity      int       `json:"quantity"`
	ExpiredAt     time.Time `json:"expired_at"`
}

type VoucherDeliveryEvent struct {
	VoucherID int64  `json:"voucher_id"`
	Code      string `json:"code"`
	Recipient string `json:"recipient"`
	SendAt    int64  `json:"send_at,omitempty"`
	SentAt    int64  `json:"sent_at,omitempty"`
}
