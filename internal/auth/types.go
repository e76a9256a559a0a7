package auth

import (
	"time"

	"vcsync.org/internal/tenant"
)

// PendingRegistration is an organization registration awaiting OTP confirmation.
type PendingRegistration struct {
	ID            string
	OrgName       string
	AdminUsername string
	AdminEmail    string
	PasswordHash  string
	OTP           string
	Attempts      int
	ExpiresAt     time.Time
	CreatedAt     time.Time
	ConsumedAt    *time.Time
}

// Valid reports whether the record is unconsumed and unexpired at now.
func (p PendingRegistration) Valid(now time.Time) bool {
	return p.ConsumedAt == nil && now.Before(p.ExpiresAt)
}

// LoginCode is a one-time email login code.
type LoginCode struct {
	ID         string
	AccountID  string
	Code       string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// TokenPair is a JWT access/refresh pair.
type TokenPair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Login types reported by Session.LoginType.
const (
	LoginWorker            = "worker"
	LoginOrganizationAdmin = "organization_admin"
	LoginEmail             = "email"
)

// Session is returned by every flow that signs an account in.
type Session struct {
	Account      tenant.Account
	Organization *tenant.Organization
	Membership   *tenant.Membership
	Tokens       TokenPair
	// LegacyToken is only set by username/password logins.
	LegacyToken string
	LoginType   string
}

// RegistrationRequest starts organization registration.
type RegistrationRequest struct {
	OrgName       string
	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

// RegistrationTicket describes a created pending registration.
type RegistrationTicket struct {
	PendingID      string    `json:"pending_id"`
	OrgName        string    `json:"org_name"`
	AdminUsername  string    `json:"admin_username"`
	AdminEmail     string    `json:"admin_email"`
	ExpiresAt      time.Time `json:"expires_at"`
	EmailDelivered bool      `json:"email_delivered"`
	DebugOTP       string    `json:"debug_otp,omitempty"`
}

// LoginRequest is a username/password login scoped to one organization.
type LoginRequest struct {
	Username string
	Password string
	OrgName  string
}

// EnrollmentRequest creates a worker account inside an organization the actor administers.
type EnrollmentRequest struct {
	Organization tenant.OrganizationRef
	// DeprecatedOrgID is the retired org_id field; any value is rejected.
	DeprecatedOrgID string
	Username        string
	Password        string
	Email           string
	Profile         tenant.Profile
}

// EmailCodeTicket describes an issued email login code.
type EmailCodeTicket struct {
	Email          string    `json:"email"`
	ExpiresAt      time.Time `json:"expires_at"`
	EmailDelivered bool      `json:"email_delivered"`
	DebugCode      string    `json:"debug_code,omitempty"`
}

// MembershipView pairs a membership with its organization.
type MembershipView struct {
	Membership   tenant.Membership   `json:"membership"`
	Organization tenant.Organization `json:"organization"`
}

// Me is the caller's account with every membership.
type Me struct {
	Account     tenant.Account   `json:"account"`
	Memberships []MembershipView `json:"memberships"`
}
