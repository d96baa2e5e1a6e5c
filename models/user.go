package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleClient   = "client"
)

// Employee capabilities
const (
	CapabilityManageLeads     = "manage_leads"
	CapabilityManageSequences = "manage_sequences"
	CapabilityManageProposals = "manage_proposals"
)

// User represents a console account: agency admins, employees with scoped
// capabilities, and clients (read-only on their own data).
type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`

	Role         string   `gorm:"default:'client'" json:"role"` // admin, employee, client
	Capabilities []string `gorm:"type:jsonb;serializer:json" json:"capabilities,omitempty"`

	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`
}

// HasCapability reports whether the user may perform a CRM mutation. Admins
// pass every check; employees need the named capability.
func (u *User) HasCapability(capability string) bool {
	if u.Role == RoleAdmin {
		return true
	}
	if u.Role != RoleEmployee {
		return false
	}
	for _, c := range u.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// RefreshToken stores the long-lived half of a session token pair.
type RefreshToken struct {
	gorm.Model
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	Token     string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	User User `json:"-"`
}
