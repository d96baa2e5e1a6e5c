package models

import "gorm.io/gorm"

// Proposal statuses
const (
	ProposalStatusDraft    = "draft"
	ProposalStatusSent     = "sent"
	ProposalStatusAccepted = "accepted"
	ProposalStatusDeclined = "declined"
)

// Proposal is an auto-generated service quote for a lead, built from the
// service keywords matched at import time.
type Proposal struct {
	gorm.Model
	LeadID      uint `gorm:"not null;index" json:"lead_id"`
	CreatedByID uint `gorm:"index" json:"created_by_id"`

	Title  string `gorm:"not null" json:"title"`
	Status string `gorm:"default:'draft'" json:"status"` // draft, sent, accepted, declined

	// Line items stored as JSON - same flexible-schema tradeoff as sequence steps
	Items []ProposalItem `gorm:"type:jsonb;serializer:json" json:"items"`

	// Cents
	Total int64 `gorm:"default:0" json:"total"`

	// Relations
	Lead Lead `json:"-"`
}

// ProposalItem is one priced service line.
type ProposalItem struct {
	Service     string `json:"service"`
	Tier        string `json:"tier"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"` // cents
}

// RecalculateTotal sums line item prices into Total.
func (p *Proposal) RecalculateTotal() {
	var total int64
	for _, item := range p.Items {
		total += item.Price
	}
	p.Total = total
}
