package models

import (
	"time"

	"gorm.io/gorm"
)

// Step action types
const (
	ActionEmail    = "email"
	ActionPhone    = "phone"
	ActionLinkedIn = "linkedin"
	ActionTask     = "task"
)

// Enrollment statuses
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentEnded     = "ended"
)

// Per-contact step statuses
const (
	StepPending   = "pending"
	StepCompleted = "completed"
	StepSkipped   = "skipped"
)

// Cadence represents a named, ordered outreach sequence
type Cadence struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	// Relations
	Steps []CadenceStep `gorm:"foreignKey:CadenceID" json:"steps,omitempty"`
}

// CadenceStep represents one unit of outreach work within a cadence
type CadenceStep struct {
	gorm.Model
	CadenceID  uint  `gorm:"not null;index" json:"cadence_id"`
	TemplateID *uint `gorm:"index" json:"template_id,omitempty"`

	DayNumber    int    `gorm:"not null;default:0" json:"day_number"`
	ActionType   string `gorm:"not null" json:"action_type"` // email, phone, linkedin, task
	Label        string `gorm:"not null" json:"label"`
	Instructions string `gorm:"type:text" json:"instructions"`
	EmailSubject string `json:"email_subject"`
	EmailBody    string `gorm:"type:text" json:"email_body"`

	// Relations
	Cadence  Cadence   `json:"-"`
	Template *Template `json:"template,omitempty"`
}

// ContactCadence is the enrollment of a contact in a cadence
type ContactCadence struct {
	gorm.Model
	ContactID uint `gorm:"not null;index" json:"contact_id"`
	CadenceID uint `gorm:"not null;index" json:"cadence_id"`

	CurrentDay  int        `gorm:"not null;default:0" json:"current_day"`
	Status      string     `gorm:"not null;default:'active';index" json:"status"` // active, completed, ended
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	EndedAt     *time.Time `json:"ended_at"`

	// Relations
	Contact Contact              `json:"-"`
	Cadence Cadence              `json:"cadence,omitempty"`
	Steps   []ContactCadenceStep `gorm:"foreignKey:EnrollmentID" json:"steps,omitempty"`
}

// ContactCadenceStep is a cadence step materialized for one enrollment
type ContactCadenceStep struct {
	gorm.Model
	EnrollmentID  uint  `gorm:"not null;index" json:"enrollment_id"`
	CadenceStepID uint  `gorm:"not null;index" json:"cadence_step_id"`
	ContactID     uint  `gorm:"not null;index" json:"contact_id"`
	TouchID       *uint `json:"touch_id,omitempty"`

	DayNumber   int        `gorm:"not null" json:"day_number"`
	DueOn       time.Time  `gorm:"not null" json:"due_on"` // midnight UTC
	Status      string     `gorm:"not null;default:'pending';index" json:"status"` // pending, completed, skipped
	CompletedAt *time.Time `json:"completed_at"`
	SkippedAt   *time.Time `json:"skipped_at"`

	// Relations
	CadenceStep CadenceStep `json:"cadence_step"`
}

// IsTerminal reports whether the step can no longer change status
func (s *ContactCadenceStep) IsTerminal() bool {
	return s.Status == StepCompleted || s.Status == StepSkipped
}
