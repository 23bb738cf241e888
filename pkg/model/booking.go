package model

import (
	"time"
)

const (
	BookingPending     = "PENDING"
	BookingPaid        = "PAID"
	BookingCancelled   = "CANCELLED"
	BookingRescheduled = "RESCHEDULED"
)

// ActiveBookingStatuses are the states that count toward capacity and
// availability on a date.
var ActiveBookingStatuses = []string{BookingPending, BookingPaid, BookingRescheduled}

// ServiceLine is one booked service within a booking. Package occupancy
// fields are denormalized from the catalog so the commit-time capacity check
// does not need a catalog lookup.
type ServiceLine struct {
	ServiceID           string  `json:"service_id" bson:"service_id" validate:"required"`
	ServiceTitle        string  `json:"service_title" bson:"service_title" validate:"required"`
	Quantity            int     `json:"quantity" bson:"quantity" validate:"required,min=1"`
	UnitPrice           float64 `json:"unit_price" bson:"unit_price" validate:"min=0"`
	PackageID           string  `json:"package_id,omitempty" bson:"package_id,omitempty"`
	PackageMaxOccupancy int     `json:"package_max_occupancy,omitempty" bson:"package_max_occupancy,omitempty"`
}

// Booking is the reservation aggregate. The engine only reads it; all
// mutation happens inside the reschedule coordinator's transaction.
type Booking struct {
	ID                string        `json:"id,omitempty" bson:"_id,omitempty"`
	CustomerID        string        `json:"customer_id" bson:"customer_id" validate:"required"`
	Status            string        `json:"status" bson:"status" validate:"required,oneof=PENDING PAID CANCELLED RESCHEDULED"`
	StartTime         time.Time     `json:"start_time" bson:"start_time" validate:"required"`
	OriginalStartTime *time.Time    `json:"original_start_time,omitempty" bson:"original_start_time,omitempty"`
	RescheduledAt     *time.Time    `json:"rescheduled_at,omitempty" bson:"rescheduled_at,omitempty"`
	RescheduleReason  string        `json:"reschedule_reason,omitempty" bson:"reschedule_reason,omitempty"`
	RescheduleCount   int           `json:"reschedule_count" bson:"reschedule_count"`
	RescheduledBy     string        `json:"rescheduled_by,omitempty" bson:"rescheduled_by,omitempty"`
	TotalAmount       float64       `json:"total_amount" bson:"total_amount" validate:"min=0"`
	Currency          string        `json:"currency" bson:"currency" validate:"required,len=3"`
	ServiceLines      []ServiceLine `json:"service_lines" bson:"service_lines" validate:"required,min=1,dive"`
	CreatedAt         time.Time     `json:"created_at" bson:"created_at"`
}

// ServiceIDs returns the IDs of every booked service.
func (b *Booking) ServiceIDs() []string {
	ids := make([]string, 0, len(b.ServiceLines))
	for _, line := range b.ServiceLines {
		ids = append(ids, line.ServiceID)
	}
	return ids
}

// IsActive reports whether the booking occupies capacity on its date.
func (b *Booking) IsActive() bool {
	for _, s := range ActiveBookingStatuses {
		if b.Status == s {
			return true
		}
	}
	return false
}

// RescheduleHistoryEntry is the append-only audit record of one committed
// reschedule.
type RescheduleHistoryEntry struct {
	ID               string    `json:"id,omitempty" bson:"_id,omitempty"`
	BookingID        string    `json:"booking_id" bson:"booking_id"`
	PreviousStart    time.Time `json:"previous_start" bson:"previous_start"`
	NewStart         time.Time `json:"new_start" bson:"new_start"`
	Reason           string    `json:"reason,omitempty" bson:"reason,omitempty"`
	ActorID          string    `json:"actor_id" bson:"actor_id"`
	NotificationSent bool      `json:"notification_sent" bson:"notification_sent"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}
