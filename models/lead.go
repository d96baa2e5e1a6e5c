package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead sources
const (
	LeadSourceWebsite    = "website"
	LeadSourceBulkImport = "bulk_import"
	LeadSourceReferral   = "referral"
	LeadSourceManual     = "manual"
)

// Lead priorities
const (
	LeadPriorityLow    = "low"
	LeadPriorityMedium = "medium"
	LeadPriorityHigh   = "high"
)

// Lead represents a single prospect captured from the site, the CRM, or a
// bulk import. Dedup by email then phone: an existing match is updated, never
// duplicated.
type Lead struct {
	gorm.Model
	Name    string `json:"name"`
	Email   string `gorm:"index" json:"email"`
	Phone   string `gorm:"index" json:"phone"`
	Company string `json:"company"`

	Source   string `gorm:"not null" json:"source"`
	Interest string `json:"interest"`
	Budget   string `json:"budget"`
	Timeline string `json:"timeline"`

	Score    int    `gorm:"default:0" json:"score"`
	Priority string `gorm:"default:'medium'" json:"priority"` // low, medium, high

	// Service keywords inferred at import time, and freeform tags
	ServiceKeywords []string `gorm:"type:jsonb;serializer:json" json:"service_keywords,omitempty"`
	Tags            []string `gorm:"type:jsonb;serializer:json" json:"tags,omitempty"`

	Notes string `gorm:"type:text" json:"notes"`

	AssignedToID *uint      `gorm:"index" json:"assigned_to_id,omitempty"`
	LastContact  *time.Time `json:"last_contact,omitempty"`

	// Relations
	Assignments []SequenceAssignment `gorm:"foreignKey:LeadID" json:"assignments,omitempty"`
	Proposals   []Proposal           `gorm:"foreignKey:LeadID" json:"proposals,omitempty"`
	AssignedTo  *User                `gorm:"foreignKey:AssignedToID" json:"-"`
}

// FirstName returns the leading word of the lead's name, used by merge tags
// and the fallback generator.
func (l *Lead) FirstName() string {
	for i := 0; i < len(l.Name); i++ {
		if l.Name[i] == ' ' {
			return l.Name[:i]
		}
	}
	return l.Name
}

// LastName returns everything after the first space, or "".
func (l *Lead) LastName() string {
	for i := 0; i < len(l.Name); i++ {
		if l.Name[i] == ' ' {
			return l.Name[i+1:]
		}
	}
	return ""
}
