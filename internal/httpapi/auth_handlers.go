package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vcsync.org/internal/audit"
	"vcsync.org/internal/auth"
	"vcsync.org/internal/tenant"
)

type registrationRequest struct {
	OrgName       string `json:"org_name"`
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`
	AdminEmail    string `json:"admin_email"`
}

type confirmRequest struct {
	PendingID string `json:"pending_id"`
	OTP       string `json:"otp"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OrgName  string `json:"org_name"`
}

type enrollRequest struct {
	Organization     string `json:"organization"`
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	// OrgID is the retired numeric reference; any value is rejected.
	OrgID       json.RawMessage `json:"org_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	Email       string          `json:"email"`
	FullName    string          `json:"full_name"`
	PhoneNumber string          `json:"phone_number"`
	Gender      string          `json:"gender"`
	DateOfBirth string          `json:"date_of_birth"`
}

type emailCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type sessionResponse struct {
	Account      tenant.Account       `json:"account"`
	Organization *tenant.Organization `json:"organization"`
	Membership   *tenant.Membership   `json:"membership,omitempty"`
	Role         tenant.Role          `json:"role,omitempty"`
	MembershipID string               `json:"membership_id,omitempty"`
	IsStaff      bool                 `json:"is_staff"`
	LoginType    string               `json:"login_type,omitempty"`
	Token        string               `json:"token,omitempty"`
	auth.TokenPair
}

func newSessionResponse(s auth.Session) sessionResponse {
	resp := sessionResponse{
		Account:      s.Account,
		Organization: s.Organization,
		Membership:   s.Membership,
		IsStaff:      s.Account.IsStaff,
		LoginType:    s.LoginType,
		Token:        s.LegacyToken,
		TokenPair:    s.Tokens,
	}
	if s.Membership != nil {
		resp.Role = s.Membership.Role
		resp.MembershipID = s.Membership.ID
	}
	return resp
}

func (a *API) requestRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ticket, err := a.svc.Auth.RequestRegistration(r.Context(), auth.RegistrationRequest{
		OrgName:       req.OrgName,
		AdminUsername: req.AdminUsername,
		AdminPassword: req.AdminPassword,
		AdminEmail:    req.AdminEmail,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.registration_requested", map[string]any{
		"pending_id": ticket.PendingID,
		"org_name":   ticket.OrgName,
	})
	writeJSON(w, http.StatusCreated, ticket)
}

func (a *API) confirmRegistration(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.svc.Auth.ConfirmRegistration(r.Context(), strings.TrimSpace(req.PendingID), strings.TrimSpace(req.OTP))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.registered", map[string]any{
		"organization_id": session.Organization.ID,
		"account_id":      session.Account.ID,
	})
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (a *API) workerLogin(w http.ResponseWriter, r *http.Request) {
	a.passwordLogin(w, r, a.svc.Auth.Login)
}

func (a *API) organizationLogin(w http.ResponseWriter, r *http.Request) {
	a.passwordLogin(w, r, a.svc.Auth.OrganizationLogin)
}

func (a *API) passwordLogin(w http.ResponseWriter, r *http.Request, login func(context.Context, auth.LoginRequest) (auth.Session, error)) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := login(r.Context(), auth.LoginRequest{Username: req.Username, Password: req.Password, OrgName: req.OrgName})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (a *API) enrollWorker(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	profile := tenant.Profile{FullName: req.FullName, PhoneNumber: req.PhoneNumber, Gender: req.Gender}
	if dob := strings.TrimSpace(req.DateOfBirth); dob != "" {
		t, err := time.Parse(time.DateOnly, dob)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
			return
		}
		profile.DateOfBirth = &t
	}
	ref := tenant.OrganizationRef{ID: req.OrganizationID, Name: req.OrganizationName}
	if ref.Name == "" {
		ref.Name = req.Organization
	}
	var deprecated string
	if raw := strings.TrimSpace(string(req.OrgID)); raw != "" && raw != "null" {
		deprecated = raw
	}
	session, err := a.svc.Auth.EnrollWorker(r.Context(), principal(r), auth.EnrollmentRequest{
		Organization:    ref,
		DeprecatedOrgID: deprecated,
		Username:        req.Username,
		Password:        req.Password,
		Email:           req.Email,
		Profile:         profile,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "worker.enrolled", map[string]any{
		"organization_id": session.Organization.ID,
		"account_id":      session.Account.ID,
	})
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (a *API) requestEmailCode(w http.ResponseWriter, r *http.Request) {
	var req emailCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ticket, err := a.svc.Auth.RequestEmailCode(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (a *API) verifyEmailCode(w http.ResponseWriter, r *http.Request) {
	var req emailCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.svc.Auth.VerifyEmailCode(r.Context(), req.Email, strings.TrimSpace(req.Code))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	access, expires, err := a.svc.Auth.Refresh(r.Context(), strings.TrimSpace(req.Refresh))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access":            access,
		"access_expires_at": expires,
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	me, err := a.svc.Auth.Me(r.Context(), principal(r).AccountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}
