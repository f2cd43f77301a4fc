package models

import (
	"time"
)

// History event types
const (
	EventAdded            = "added"
	EventCompleted        = "completed"
	EventSkipped          = "skipped"
	EventPostponed        = "postponed"
	EventCadenceCompleted = "cadence_completed"
	EventContactRemoved   = "contact_removed"
	EventEnded            = "ended"
)

// CadenceHistoryEvent is one lifecycle transition of an enrollment.
// Rows are insert-only: no UpdatedAt, no DeletedAt.
type CadenceHistoryEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ContactID     uint  `gorm:"not null;index:idx_history_cadence_contact,priority:2" json:"contact_id"`
	CadenceID     uint  `gorm:"not null;index:idx_history_cadence_contact,priority:1" json:"cadence_id"`
	EnrollmentID  uint  `gorm:"not null;index" json:"enrollment_id"`
	CadenceStepID *uint `json:"cadence_step_id,omitempty"`
	TouchID       *uint `json:"touch_id,omitempty"`

	EventType string    `gorm:"not null" json:"event_type"`
	EventAt   time.Time `gorm:"not null;index" json:"event_at"`
	Metadata  string    `gorm:"type:text" json:"metadata"` // JSON object
}
