package models

import (
	"gorm.io/gorm"
)

// Contact represents a person being worked through outreach
type Contact struct {
	gorm.Model

	FirstName   string `gorm:"not null" json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `gorm:"index" json:"company"`
	Title       string `json:"title"`
	Email       string `gorm:"index" json:"email"`
	Phone       string `json:"phone"`
	LinkedInURL string `gorm:"column:linkedin_url" json:"linkedin_url"`
	Notes       string `gorm:"type:text" json:"notes"`

	// Relations
	Tags        []Tag            `gorm:"many2many:contact_tags;" json:"tags,omitempty"`
	Touches     []Touch          `gorm:"foreignKey:ContactID" json:"-"`
	Enrollments []ContactCadence `gorm:"foreignKey:ContactID" json:"enrollments,omitempty"`
}

// FullName joins first and last name, skipping blanks
func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	if c.FirstName == "" {
		return c.LastName
	}
	return c.FirstName + " " + c.LastName
}

// Tag is a free-form label; names are unique
type Tag struct {
	gorm.Model
	Name string `gorm:"not null;uniqueIndex" json:"name"`

	Contacts []Contact `gorm:"many2many:contact_tags;" json:"-"`
}
