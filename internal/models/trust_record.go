// Package models contains data structures for the application's domain models.
package models

import "time"

// TrustRecord tracks how many messages a participant has posted in the
// guarded chat. Created at most once per participant; MessageCount only
// increases. Records are never deleted by this service.
type TrustRecord struct {
	UserID       int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	MessageCount int64     `gorm:"not null;default:0" json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullyTrusted reports whether the participant has cleared the monitored
// window for the given promotion threshold.
func (r *TrustRecord) FullyTrusted(threshold int64) bool {
	return r.MessageCount >= threshold
}
