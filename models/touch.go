package models

import (
	"time"
)

// Touch types
const (
	TouchEmail    = "email"
	TouchCall     = "call"
	TouchLinkedIn = "linkedin"
	TouchOther    = "other"
)

// Touch is a logged, timestamped interaction with a contact.
// Touches are hard deleted, so there is no DeletedAt column.
type Touch struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ContactID uint      `gorm:"not null;index" json:"contact_id"`
	TouchedAt time.Time `gorm:"not null;index" json:"touched_at"`
	TouchType string    `gorm:"not null" json:"touch_type"` // email, call, linkedin, other
	Subject   string    `json:"subject"`
	Body      string    `gorm:"type:text" json:"body"`     // HTML allowed
	Metadata  string    `gorm:"type:text" json:"metadata"` // JSON object

	// Cadence linkage
	CadenceID     *uint `gorm:"index" json:"cadence_id,omitempty"`
	CadenceStepID *uint `gorm:"index" json:"cadence_step_id,omitempty"`

	// Reply threading; the parent is referenced, never owned
	ThreadID      string `gorm:"index" json:"thread_id,omitempty"`
	ParentTouchID *uint  `gorm:"index" json:"parent_touch_id,omitempty"`
}
