package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vcsync.org/internal/apperr"
	"vcsync.org/internal/ids"
	"vcsync.org/internal/mail"
	"vcsync.org/internal/obs"
	"vcsync.org/internal/tenant"
)

const (
	defaultOTPTTL      = 10 * time.Minute
	defaultMaxAttempts = 5
	codeDigits         = 6
	legacyTokenBytes   = 20
)

// Service implements organization registration, logins, worker enrollment and token handling.
type Service struct {
	store  Store
	dir    *tenant.Directory
	tokens *TokenIssuer
	mailer mail.Sender
	log    *zap.Logger
	now    func() time.Time

	otpTTL      time.Duration
	maxAttempts int
	exposeCodes bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithMailer sets the OTP delivery channel.
func WithMailer(m mail.Sender) ServiceOption {
	return func(s *Service) error {
		if m != nil {
			s.mailer = m
		}
		return nil
	}
}

// WithOTPTTL configures the lifetime of registration OTPs and email login codes.
func WithOTPTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return errors.New("auth: otp ttl must be positive")
		}
		s.otpTTL = ttl
		return nil
	}
}

// WithMaxAttempts caps wrong OTP confirmations per pending registration.
func WithMaxAttempts(n int) ServiceOption {
	return func(s *Service) error {
		if n <= 0 {
			return errors.New("auth: max attempts must be positive")
		}
		s.maxAttempts = n
		return nil
	}
}

// WithExposeCodes echoes OTPs and login codes in responses. Development only.
func WithExposeCodes(expose bool) ServiceOption {
	return func(s *Service) error {
		s.exposeCodes = expose
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, dir *tenant.Directory, tokens *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil || dir == nil || tokens == nil {
		return nil, errors.New("auth: store, directory and token issuer are required")
	}
	svc := &Service{
		store:       store,
		dir:         dir,
		tokens:      tokens,
		now:         time.Now,
		otpTTL:      defaultOTPTTL,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.log == nil {
		svc.log = obs.Logger()
	}
	if svc.mailer == nil {
		svc.mailer = mail.LogSender{Logger: svc.log}
	}
	return svc, nil
}

// Tokens exposes the issuer used by the service.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// RequestRegistration validates the request, stores a pending registration and emails the OTP.
func (s *Service) RequestRegistration(ctx context.Context, req RegistrationRequest) (RegistrationTicket, error) {
	orgName, err := tenant.NormalizeOrganizationName(req.OrgName)
	if err != nil {
		return RegistrationTicket{}, err
	}
	username, err := tenant.NormalizeUsername(req.AdminUsername)
	if err != nil {
		return RegistrationTicket{}, err
	}
	email, err := tenant.NormalizeEmail(req.AdminEmail)
	if err != nil {
		return RegistrationTicket{}, err
	}
	if err := ValidatePassword(req.AdminPassword); err != nil {
		return RegistrationTicket{}, err
	}

	if err := s.ensureAvailable(ctx, orgName, username); err != nil {
		return RegistrationTicket{}, err
	}
	now := s.now().UTC()
	existing, err := s.store.LatestPending(ctx, orgName, username, email)
	switch {
	case err == nil && existing.Valid(now):
		return RegistrationTicket{}, ErrPendingExists
	case err != nil && !errors.Is(err, ErrPendingNotFound):
		return RegistrationTicket{}, err
	}

	hash, err := HashPassword(req.AdminPassword)
	if err != nil {
		return RegistrationTicket{}, err
	}
	otp, err := ids.Digits(codeDigits)
	if err != nil {
		return RegistrationTicket{}, err
	}
	pending := PendingRegistration{
		ID:            ids.New(),
		OrgName:       orgName,
		AdminUsername: username,
		AdminEmail:    email,
		PasswordHash:  hash,
		OTP:           otp,
		ExpiresAt:     now.Add(s.otpTTL),
		CreatedAt:     now,
	}
	if err := s.store.CreatePending(ctx, pending); err != nil {
		return RegistrationTicket{}, err
	}

	ticket := RegistrationTicket{
		PendingID:     pending.ID,
		OrgName:       orgName,
		AdminUsername: username,
		AdminEmail:    email,
		ExpiresAt:     pending.ExpiresAt,
		EmailDelivered: s.deliver(ctx, mail.Message{
			To:      email,
			Subject: "Your registration OTP",
			Body:    fmt.Sprintf("Your OTP code is %s. It will expire in %s.", otp, s.otpTTL),
		}),
	}
	if s.exposeCodes {
		ticket.DebugOTP = otp
	}
	return ticket, nil
}

// ConfirmRegistration checks the OTP and provisions the organization with its first admin.
func (s *Service) ConfirmRegistration(ctx context.Context, pendingID, otp string) (Session, error) {
	pending, err := s.store.GetPending(ctx, strings.TrimSpace(pendingID))
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	switch {
	case pending.ConsumedAt != nil:
		obs.RegistrationConfirmed("consumed")
		return Session{}, ErrRegistrationUsed
	case !now.Before(pending.ExpiresAt):
		obs.RegistrationConfirmed("expired")
		return Session{}, ErrOTPExpired
	case pending.Attempts >= s.maxAttempts:
		obs.RegistrationConfirmed("locked")
		return Session{}, ErrTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(otp)), []byte(pending.OTP)) != 1 {
		if _, err := s.store.IncrementAttempts(ctx, pending.ID); err != nil {
			return Session{}, err
		}
		obs.RegistrationConfirmed("invalid_otp")
		return Session{}, ErrInvalidOTP
	}

	if err := s.ensureAvailable(ctx, pending.OrgName, pending.AdminUsername); err != nil {
		obs.RegistrationConfirmed("conflict")
		return Session{}, err
	}
	org := tenant.Organization{Name: pending.OrgName}
	account := tenant.Account{
		Username:     pending.AdminUsername,
		Email:        pending.AdminEmail,
		PasswordHash: pending.PasswordHash,
		IsStaff:      true,
	}
	membership := tenant.Membership{Role: tenant.RoleAdmin}
	if err := s.store.ConsumePending(ctx, pending.ID, now); err != nil {
		if errors.Is(err, ErrAlreadyConsumed) {
			obs.RegistrationConfirmed("consumed")
			return Session{}, ErrRegistrationUsed
		}
		return Session{}, err
	}
	if err := s.dir.Provision(ctx, tenant.Provisioning{Organization: &org, Account: &account, Membership: &membership}); err != nil {
		if rerr := s.store.ReleasePending(ctx, pending.ID); rerr != nil {
			s.log.Error("auth.release_pending", zap.String("pending_id", pending.ID), zap.Error(rerr))
		}
		if errors.Is(err, apperr.ErrConflict) {
			obs.RegistrationConfirmed("conflict")
		} else {
			obs.RegistrationConfirmed("error")
		}
		return Session{}, err
	}
	tokens, err := s.tokens.Issue(account)
	if err != nil {
		return Session{}, err
	}
	obs.RegistrationConfirmed("confirmed")
	s.log.Info("auth.registration_confirmed",
		zap.String("organization_id", org.ID),
		zap.String("account_id", account.ID),
	)
	return Session{Account: account, Organization: &org, Membership: &membership, Tokens: tokens}, nil
}

// Login signs in any member of the named organization.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	return s.passwordLogin(ctx, req, LoginWorker)
}

// OrganizationLogin signs in an ADMIN of the named organization.
func (s *Service) OrganizationLogin(ctx context.Context, req LoginRequest) (Session, error) {
	return s.passwordLogin(ctx, req, LoginOrganizationAdmin)
}

func (s *Service) passwordLogin(ctx context.Context, req LoginRequest, loginType string) (Session, error) {
	username := strings.TrimSpace(req.Username)
	orgName := strings.TrimSpace(req.OrgName)
	if username == "" || req.Password == "" || orgName == "" {
		return Session{}, fmt.Errorf("%w: username, password and org_name are required", apperr.ErrInvalidInput)
	}
	account, err := s.dir.AccountByUsername(ctx, username)
	if errors.Is(err, tenant.ErrAccountNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if VerifyPassword(account.PasswordHash, req.Password) != nil {
		return Session{}, ErrInvalidCredentials
	}
	org, err := s.dir.OrganizationByName(ctx, orgName)
	if err != nil {
		return Session{}, err
	}
	membership, err := s.dir.RequireMember(ctx, account.ID, org.ID)
	if err != nil {
		return Session{}, err
	}
	if loginType == LoginOrganizationAdmin && membership.Role != tenant.RoleAdmin {
		return Session{}, tenant.ErrInsufficientRole
	}
	legacy, err := s.legacyToken(ctx, account.ID)
	if err != nil {
		return Session{}, err
	}
	tokens, err := s.tokens.Issue(account)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Account:      account,
		Organization: &org,
		Membership:   &membership,
		Tokens:       tokens,
		LegacyToken:  legacy,
		LoginType:    loginType,
	}, nil
}

// EnrollWorker creates a USER account in an organization administered by actor.
func (s *Service) EnrollWorker(ctx context.Context, actor Principal, req EnrollmentRequest) (Session, error) {
	if strings.TrimSpace(req.DeprecatedOrgID) != "" {
		return Session{}, ErrDeprecatedOrgID
	}
	username, err := tenant.NormalizeUsername(req.Username)
	if err != nil {
		return Session{}, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return Session{}, err
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		if email, err = tenant.NormalizeEmail(email); err != nil {
			return Session{}, err
		}
	}
	profile := req.Profile
	profile.Gender = strings.ToUpper(strings.TrimSpace(profile.Gender))
	switch profile.Gender {
	case "", "M", "F", "O":
	default:
		return Session{}, ErrInvalidGender
	}

	org, _, err := s.dir.ResolveAdminOrganization(ctx, actor.AccountID, req.Organization)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.dir.AccountByUsername(ctx, username); err == nil {
		return Session{}, tenant.ErrUsernameTaken
	} else if !errors.Is(err, tenant.ErrAccountNotFound) {
		return Session{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return Session{}, err
	}
	account := tenant.Account{Username: username, Email: email, PasswordHash: hash}
	membership := tenant.Membership{OrganizationID: org.ID, Role: tenant.RoleUser, Profile: profile}
	if err := s.dir.Provision(ctx, tenant.Provisioning{Account: &account, Membership: &membership}); err != nil {
		return Session{}, err
	}
	tokens, err := s.tokens.Issue(account)
	if err != nil {
		return Session{}, err
	}
	s.log.Info("auth.worker_enrolled",
		zap.String("organization_id", org.ID),
		zap.String("account_id", account.ID),
		zap.String("enrolled_by", actor.AccountID),
	)
	return Session{Account: account, Organization: &org, Membership: &membership, Tokens: tokens}, nil
}

// RequestEmailCode issues a one-time login code for the account with email.
func (s *Service) RequestEmailCode(ctx context.Context, email string) (EmailCodeTicket, error) {
	email, err := tenant.NormalizeEmail(email)
	if err != nil {
		return EmailCodeTicket{}, err
	}
	account, err := s.dir.AccountByEmail(ctx, email)
	if errors.Is(err, tenant.ErrAccountNotFound) {
		return EmailCodeTicket{}, ErrEmailNotFound
	}
	if err != nil {
		return EmailCodeTicket{}, err
	}
	code, err := ids.Digits(codeDigits)
	if err != nil {
		return EmailCodeTicket{}, err
	}
	now := s.now().UTC()
	lc := LoginCode{
		ID:        ids.New(),
		AccountID: account.ID,
		Code:      code,
		ExpiresAt: now.Add(s.otpTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateLoginCode(ctx, lc); err != nil {
		return EmailCodeTicket{}, err
	}
	ticket := EmailCodeTicket{
		Email:     email,
		ExpiresAt: lc.ExpiresAt,
		EmailDelivered: s.deliver(ctx, mail.Message{
			To:      email,
			Subject: "Your login code",
			Body:    fmt.Sprintf("Your login code is %s. It will expire in %s.", code, s.otpTTL),
		}),
	}
	if s.exposeCodes {
		ticket.DebugCode = code
	}
	return ticket, nil
}

// VerifyEmailCode consumes a login code and signs the account in.
// The oldest membership, if any, becomes the session's organization context.
func (s *Service) VerifyEmailCode(ctx context.Context, email, code string) (Session, error) {
	email, err := tenant.NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Session{}, ErrInvalidCode
	}
	account, err := s.dir.AccountByEmail(ctx, email)
	if errors.Is(err, tenant.ErrAccountNotFound) {
		return Session{}, ErrInvalidCode
	}
	if err != nil {
		return Session{}, err
	}
	lc, err := s.store.LatestLoginCode(ctx, account.ID, code)
	if errors.Is(err, ErrLoginCodeNotFound) {
		return Session{}, ErrInvalidCode
	}
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	if lc.ConsumedAt != nil {
		return Session{}, ErrCodeUsed
	}
	if !now.Before(lc.ExpiresAt) {
		return Session{}, ErrCodeExpired
	}
	if err := s.store.ConsumeLoginCode(ctx, lc.ID, now); err != nil {
		if errors.Is(err, ErrAlreadyConsumed) {
			return Session{}, ErrCodeUsed
		}
		return Session{}, err
	}

	session := Session{Account: account, LoginType: LoginEmail}
	memberships, err := s.dir.Memberships(ctx, account.ID)
	if err != nil {
		return Session{}, err
	}
	if len(memberships) > 0 {
		m := memberships[0]
		org, err := s.dir.Organization(ctx, m.OrganizationID)
		if err != nil {
			return Session{}, err
		}
		session.Membership, session.Organization = &m, &org
	}
	if session.Tokens, err = s.tokens.Issue(account); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Parse(refreshToken, RefreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	account, err := s.dir.Account(ctx, claims.Subject)
	if errors.Is(err, tenant.ErrAccountNotFound) {
		return "", time.Time{}, ErrInvalidToken
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Access(account)
}

// Authenticate resolves an Authorization header value: "Bearer <jwt>" or "Token <legacy>".
func (s *Service) Authenticate(ctx context.Context, header string) (Principal, error) {
	scheme, credential, ok := strings.Cut(strings.TrimSpace(header), " ")
	credential = strings.TrimSpace(credential)
	if !ok || credential == "" {
		return Principal{}, ErrUnauthenticated
	}
	var (
		accountID string
		method    string
	)
	switch strings.ToLower(scheme) {
	case "bearer":
		claims, err := s.tokens.Parse(credential, AccessToken)
		if err != nil {
			return Principal{}, err
		}
		accountID, method = claims.Subject, "jwt"
	case "token":
		id, err := s.store.AccountForLegacyToken(ctx, credential)
		if err != nil {
			return Principal{}, ErrInvalidToken
		}
		accountID, method = id, "legacy"
	default:
		return Principal{}, ErrUnauthenticated
	}
	account, err := s.dir.Account(ctx, accountID)
	if errors.Is(err, tenant.ErrAccountNotFound) {
		return Principal{}, ErrInvalidToken
	}
	if err != nil {
		return Principal{}, err
	}
	return Principal{AccountID: account.ID, Username: account.Username, IsStaff: account.IsStaff, Method: method}, nil
}

// Me returns the account with all memberships, oldest first.
func (s *Service) Me(ctx context.Context, accountID string) (Me, error) {
	account, err := s.dir.Account(ctx, accountID)
	if err != nil {
		return Me{}, err
	}
	memberships, err := s.dir.Memberships(ctx, accountID)
	if err != nil {
		return Me{}, err
	}
	out := Me{Account: account, Memberships: make([]MembershipView, 0, len(memberships))}
	for _, m := range memberships {
		org, err := s.dir.Organization(ctx, m.OrganizationID)
		if err != nil {
			return Me{}, err
		}
		out.Memberships = append(out.Memberships, MembershipView{Membership: m, Organization: org})
	}
	return out, nil
}

func (s *Service) ensureAvailable(ctx context.Context, orgName, username string) error {
	if _, err := s.dir.OrganizationByName(ctx, orgName); err == nil {
		return tenant.ErrOrganizationExists
	} else if !errors.Is(err, tenant.ErrOrganizationNotFound) {
		return err
	}
	if _, err := s.dir.AccountByUsername(ctx, username); err == nil {
		return tenant.ErrUsernameTaken
	} else if !errors.Is(err, tenant.ErrAccountNotFound) {
		return err
	}
	return nil
}

func (s *Service) legacyToken(ctx context.Context, accountID string) (string, error) {
	candidate, err := ids.Opaque(legacyTokenBytes)
	if err != nil {
		return "", err
	}
	return s.store.GetOrCreateLegacyToken(ctx, accountID, candidate)
}

func (s *Service) deliver(ctx context.Context, msg mail.Message) bool {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn("auth.mail_failed", zap.String("to", msg.To), zap.Error(err))
		return false
	}
	return true
}
