package notify

import (
	"context"
	"fmt"
	"time"
	"tripdesk/pkg/config"
	"tripdesk/pkg/kafka"
	"tripdesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const TicketCollectionName = "Support_tickets"

// Dispatcher delivers the two post-commit notifications. Both methods are
// best-effort: a false return marks the notification flag, never aborts the
// commit.
type Dispatcher interface {
	NotifyClient(ctx context.Context, booking *model.Booking, previousStart time.Time, reason string) bool
	NotifySupport(ctx context.Context, booking *model.Booking, previousStart time.Time, actor model.Actor, reason string) bool
	Close() error
}

// ClientRescheduleEvent is the payload published to the client notification
// topic. Downstream consumers render the actual message.
type ClientRescheduleEvent struct {
	BookingID       string    `json:"booking_id"`
	CustomerID      string    `json:"customer_id"`
	PreviousStart   time.Time `json:"previous_start"`
	NewStart        time.Time `json:"new_start"`
	Reason          string    `json:"reason,omitempty"`
	RescheduleCount int       `json:"reschedule_count"`
}

// SupportRescheduleEvent accompanies the support ticket document.
type SupportRescheduleEvent struct {
	TicketID      string    `json:"ticket_id"`
	BookingID     string    `json:"booking_id"`
	ActorID       string    `json:"actor_id"`
	Priority      string    `json:"priority"`
	PreviousStart time.Time `json:"previous_start"`
	NewStart      time.Time `json:"new_start"`
}

type kafkaDispatcher struct {
	cfg             *config.Config
	clientProducer  *kafka.Producer
	supportProducer *kafka.Producer
	tickets         *mongo.Collection
}

func NewDispatcher(cfg *config.Config) (Dispatcher, error) {
	producerCfg := kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		MaxAttempts:  cfg.KafkaProducerMaxRetries,
		BatchTimeout: cfg.KafkaBatchTimeout,
	}

	clientProducer, err := kafka.NewProducer(producerCfg, cfg.KafkaClientTopic, cfg.KafkaDLQTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to create client notification producer: %w", err)
	}

	supportProducer, err := kafka.NewProducer(producerCfg, cfg.KafkaSupportTopic, cfg.KafkaDLQTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to create support notification producer: %w", err)
	}

	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)

	return &kafkaDispatcher{
		cfg:             cfg,
		clientProducer:  clientProducer,
		supportProducer: supportProducer,
		tickets:         db.Collection(TicketCollectionName),
	}, nil
}

func (d *kafkaDispatcher) NotifyClient(ctx context.Context, booking *model.Booking, previousStart time.Time, reason string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
	defer cancel()

	event := ClientRescheduleEvent{
		BookingID:       booking.ID,
		CustomerID:      booking.CustomerID,
		PreviousStart:   previousStart,
		NewStart:        booking.StartTime,
		Reason:          reason,
		RescheduleCount: booking.RescheduleCount,
	}

	msg := kafka.NewMessage().
		WithKey(booking.ID).
		WithEventType("booking.rescheduled.client").
		WithSource("tripdesk").
		WithValue(event).
		Build()

	if err := d.clientProducer.Publish(ctx, msg); err != nil {
		d.cfg.Log.Warn("Client notification failed",
			"booking_id", booking.ID,
			"error", err,
		)
		return false
	}

	return true
}

// NotifySupport opens a support ticket for the committed reschedule and
// publishes a support event. Ticket priority escalates with the booking's
// reschedule count.
func (d *kafkaDispatcher) NotifySupport(ctx context.Context, booking *model.Booking, previousStart time.Time, actor model.Actor, reason string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
	defer cancel()

	ticket := &model.SupportTicket{
		BookingID:  booking.ID,
		CustomerID: booking.CustomerID,
		Subject:    fmt.Sprintf("Booking %s rescheduled (%d times)", booking.ID, booking.RescheduleCount),
		Description: fmt.Sprintf(
			"Booking %s was moved from %s to %s by %s. Reason: %s",
			booking.ID,
			previousStart.Format(time.RFC3339),
			booking.StartTime.Format(time.RFC3339),
			actor.ID,
			orDefault(reason, "not given"),
		),
		Priority:  model.TicketPriorityForRescheduleCount(booking.RescheduleCount),
		Status:    model.TicketStatusOpen,
		Channel:   model.TicketChannelSystem,
		Tags:      "reschedule",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	result, err := d.tickets.InsertOne(ctx, ticket)
	if err != nil {
		d.cfg.Log.Warn("Support ticket creation failed",
			"booking_id", booking.ID,
			"error", err,
		)
		return false
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		ticket.ID = oid.Hex()
	}

	event := SupportRescheduleEvent{
		TicketID:      ticket.ID,
		BookingID:     booking.ID,
		ActorID:       actor.ID,
		Priority:      ticket.Priority,
		PreviousStart: previousStart,
		NewStart:      booking.StartTime,
	}

	msg := kafka.NewMessage().
		WithKey(booking.ID).
		WithEventType("booking.rescheduled.support").
		WithSource("tripdesk").
		WithValue(event).
		Build()

	if err := d.supportProducer.Publish(ctx, msg); err != nil {
		// The ticket exists; the event is an optimization for live dashboards.
		d.cfg.Log.Warn("Support event publish failed",
			"booking_id", booking.ID,
			"ticket_id", ticket.ID,
			"error", err,
		)
	}

	return true
}

func (d *kafkaDispatcher) Close() error {
	err := d.clientProducer.Close()
	if supportErr := d.supportProducer.Close(); err == nil {
		err = supportErr
	}
	return err
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
