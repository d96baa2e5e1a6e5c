package models

import (
	"time"

	"gorm.io/gorm"
)

// Outbox job types
const (
	OutboxJobProposalGenerate  = "proposal.generate"
	OutboxJobNotificationEmail = "notification.email"
)

// Outbox job statuses
const (
	OutboxStatusPending = "pending"
	OutboxStatusDone    = "done"
	OutboxStatusFailed  = "failed"
)

// OutboxJob is a persisted background side effect. Replaces fire-and-forget
// goroutines so jobs survive a process restart and get bounded retries.
type OutboxJob struct {
	gorm.Model
	JobType string `gorm:"not null;index" json:"job_type"`

	Payload map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"payload"`

	Status        string     `gorm:"default:'pending';index" json:"status"` // pending, done, failed
	Attempts      int        `gorm:"default:0" json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index" json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}
