package model

import "time"

// RescheduleLock is an advisory lock that serializes reschedule commits per
// booking. The lock collection carries a TTL index on expires_at so stale
// locks from crashed requests disappear on their own.
type RescheduleLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
