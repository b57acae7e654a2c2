package bookings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"seatlock/internal/catalog"
	"seatlock/internal/shared/config"
	"seatlock/pkg/logger"

	"github.com/IBM/sarama"
)

const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// BookingEvent is the record written to the booking topic after a commit
type BookingEvent struct {
	Type          string         `json:"type"`
	BookingID     string         `json:"booking_id"`
	BookingNumber string         `json:"booking_number"`
	ShowID        string         `json:"show_id"`
	UserID        string         `json:"user_id"`
	Seats         []catalog.Seat `json:"seats"`
	TotalAmount   float64        `json:"total_amount"`
	At            time.Time      `json:"at"`
}

func newBookingEvent(eventType string, b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:          eventType,
		BookingID:     b.ID.String(),
		BookingNumber: b.BookingNumber,
		ShowID:        b.ShowID.String(),
		UserID:        b.UserID,
		Seats:         b.SeatList(),
		TotalAmount:   b.TotalAmount,
		At:            at,
	}
}

// Publisher ships booking events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, ev BookingEvent) error
	Close() error
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a synchronous producer keyed by show id, so
// consumers see each show's bookings in commit order
func NewKafkaPublisher(cfg config.KafkaConfig) (Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = cfg.RetryMax
	saramaConfig.Producer.Timeout = cfg.Timeout
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.GetDefault().Info("kafka booking producer created", "brokers", cfg.Brokers, "topic", cfg.BookingTopic)
	return newKafkaPublisher(producer, cfg.BookingTopic), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string) *kafkaPublisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev BookingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.ShowID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("booking_number"), Value: []byte(ev.BookingNumber)},
		},
		Timestamp: ev.At,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send booking event to Kafka: %w", err)
	}

	logger.GetDefault().DebugWithContext(ctx, "booking event published", map[string]interface{}{
		"type":           ev.Type,
		"booking_number": ev.BookingNumber,
		"topic":          p.topic,
		"partition":      partition,
		"offset":         offset,
	})
	return nil
}

func (p *kafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// logPublisher stands in when Kafka is disabled
type logPublisher struct{}

func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) Publish(ctx context.Context, ev BookingEvent) error {
	logger.GetDefault().InfoWithContext(ctx, "booking event", map[string]interface{}{
		"type":           ev.Type,
		"booking_number": ev.BookingNumber,
		"show_id":        ev.ShowID,
		"seats":          catalog.SeatKeys(ev.Seats),
	})
	return nil
}

func (logPublisher) Close() error {
	return nil
}
