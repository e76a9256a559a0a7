package tenant

import (
	"strings"
	"time"
)

// Role is the role an account holds inside one organization.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
	// RoleOwner is accepted for memberships created by older deployments.
	RoleOwner Role = "OWNER"
)

// ManagerRoles may mutate organization-owned records.
var ManagerRoles = []Role{RoleAdmin, RoleOwner}

// ParseRole normalizes and validates a role name.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleUser, RoleOwner:
		return r, true
	default:
		return "", false
	}
}

// Organization is the tenant root.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is a login identity. It may belong to several organizations.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds the optional worker fields captured at enrollment.
type Profile struct {
	FullName    string     `json:"full_name,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// Membership links an account to an organization with exactly one role.
type Membership struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	OrganizationID string    `json:"organization_id"`
	Role           Role      `json:"role"`
	Profile        Profile   `json:"profile"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasRole reports whether the membership role is one of roles.
func (m Membership) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if m.Role == r {
			return true
		}
	}
	return false
}

// OrganizationRef names an organization by id or by name. Both empty means "not specified".
type OrganizationRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// IsZero reports whether the reference names nothing.
func (r OrganizationRef) IsZero() bool {
	return strings.TrimSpace(r.ID) == "" && strings.TrimSpace(r.Name) == ""
}

// Provisioning creates an organization, an account and a membership in one transaction.
// Organization and Account are optional; when nil, Membership must already carry the ids.
type Provisioning struct {
	Organization *Organization
	Account      *Account
	Membership   *Membership
}
