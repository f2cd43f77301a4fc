package models

import "gorm.io/gorm"

// Template represents reusable email content for cadence steps
type Template struct {
	gorm.Model

	Name    string `gorm:"not null" json:"name"`
	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"` // HTML allowed

	// Category
	Category string `json:"category"`
}
