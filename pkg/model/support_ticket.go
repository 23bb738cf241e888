package model

import "time"

const (
	TicketPriorityLow    = "LOW"
	TicketPriorityMedium = "MEDIUM"
	TicketPriorityHigh   = "HIGH"

	TicketStatusOpen = "OPEN"

	TicketChannelSystem = "SYSTEM_AUTOMATIC"
)

// SupportTicket is the support-channel notification for a committed
// reschedule. The support team works these from their own panel; creating
// one replaces emailing administrators.
type SupportTicket struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty"`
	BookingID   string    `json:"booking_id" bson:"booking_id"`
	CustomerID  string    `json:"customer_id" bson:"customer_id"`
	Subject     string    `json:"subject" bson:"subject"`
	Description string    `json:"description" bson:"description"`
	Priority    string    `json:"priority" bson:"priority"`
	Status      string    `json:"status" bson:"status"`
	Channel     string    `json:"channel" bson:"channel"`
	Tags        string    `json:"tags,omitempty" bson:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// TicketPriorityForRescheduleCount escalates ticket priority as a booking
// accumulates reschedules.
func TicketPriorityForRescheduleCount(count int) string {
	switch {
	case count >= 3:
		return TicketPriorityHigh
	case count >= 2:
		return TicketPriorityMedium
	}
	return TicketPriorityLow
}
