package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"vitrine/internal/mailer"
	"vitrine/internal/models"
	"vitrine/internal/repositories"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost trades login latency for offline brute-force resistance.
	bcryptCost = 12

	codeLength          = 6
	verificationCodeTTL = 24 * time.Hour
	resetCodeTTL        = 15 * time.Minute
	emailChangeCodeTTL  = 15 * time.Minute
)

// Claims is the JWT payload. Only non-sensitive claims are carried; the
// jti (RegisteredClaims.ID) keys the revocation blacklist.
type Claims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionMeta describes the client a token was issued to, recorded for
// the active-sessions view.
type SessionMeta struct {
	Device    string
	Browser   string
	IPAddress string
}

// AuthService handles accounts, credentials, tokens and sessions.
type AuthService struct {
	users     repositories.UserRepository
	orders    repositories.OrderRepository
	blacklist repositories.TokenBlacklist
	mail      mailer.Mailer
	logger    *zap.Logger
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users repositories.UserRepository,
	orders repositories.OrderRepository,
	blacklist repositories.TokenBlacklist,
	mail mailer.Mailer,
	logger *zap.Logger,
	jwtSecret string,
	tokenTTL time.Duration,
) *AuthService {
	return &AuthService{
		users:     users,
		orders:    orders,
		blacklist: blacklist,
		mail:      mail,
		logger:    logger,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Signup registers a new account and signs the user in. The returned
// user never carries the password hash in serialized form.
func (s *AuthService) Signup(ctx context.Context, email, password, name string, meta SessionMeta) (*models.User, string, error) {
	email = NormalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Email:    email,
		Password: string(hash),
		Name:     name,
		Role:     models.RoleCustomer,
		Preferences: models.Preferences{
			OrderUpdates: true,
			Theme:        "light",
			Currency:     "USD",
			Locale:       "en",
		},
		VerificationCode: &models.OneTimeCode{Code: code, ExpiresAt: now.Add(verificationCodeTTL)},
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, claims, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	s.recordSession(ctx, user, claims.ID, meta)

	if err := s.mail.SendVerificationCode(user.Email, code); err != nil {
		s.logger.Warn("failed to send verification email",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
	}

	return user, token, nil
}

// Signin authenticates by email and password. Unknown email and wrong
// password fail identically.
func (s *AuthService) Signin(ctx context.Context, email, password string, meta SessionMeta) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, claims, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	s.recordSession(ctx, user, claims.ID, meta)

	return user, token, nil
}

// ValidateToken verifies a bearer token. Every failure mode — bad
// signature, malformed token, expiry, revoked jti, blacklist outage —
// collapses into ErrInvalidToken.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		// Fail closed: a session the user revoked must not outlive a
		// blacklist outage.
		s.logger.Warn("token blacklist check failed", zap.Error(err))
		return nil, ErrInvalidToken
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyEmail consumes the verification code and marks the address
// verified. Verifying an already-verified account is a no-op.
func (s *AuthService) VerifyEmail(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	if !codeMatches(user.VerificationCode, code) {
		return ErrInvalidCode
	}
	user.EmailVerified = true
	user.VerificationCode = nil
	return s.users.Update(ctx, user)
}

// RequestPasswordReset issues a reset code. Always succeeds from the
// caller's perspective so the endpoint cannot be used to probe for
// registered addresses.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	user.ResetCode = &models.OneTimeCode{Code: code, ExpiresAt: time.Now().UTC().Add(resetCodeTTL)}
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	if err := s.mail.SendPasswordResetCode(user.Email, code); err != nil {
		s.logger.Warn("failed to send password reset email",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
	}
	return nil
}

// VerifyResetCode checks a reset code without consuming it.
func (s *AuthService) VerifyResetCode(ctx context.Context, email, code string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user.ResetCode == nil {
		return ErrNoActiveReset
	}
	if !codeMatches(user.ResetCode, code) {
		return ErrInvalidCode
	}
	return nil
}

// ResetPassword consumes the reset code, replaces the password and
// revokes every session. A second reset with the same code fails.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNoActiveReset
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user.ResetCode == nil {
		return ErrNoActiveReset
	}
	if !codeMatches(user.ResetCode, code) {
		return ErrInvalidCode
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hash)
	user.ResetCode = nil

	if err := s.revokeSessions(ctx, user, ""); err != nil {
		return err
	}
	return s.users.Update(ctx, user)
}

// ChangePassword replaces the password after re-checking the current
// one, revoking every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, currentTokenID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hash)

	if err := s.revokeSessions(ctx, user, currentTokenID); err != nil {
		return err
	}
	return s.users.Update(ctx, user)
}

// RequestEmailChange stores a pending address and mails a confirmation
// code to it. Requires the account password.
func (s *AuthService) RequestEmailChange(ctx context.Context, userID, password, newEmail string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	newEmail = NormalizeEmail(newEmail)
	if newEmail == user.Email {
		return fmt.Errorf("new email matches the current address: %w", ErrValidation)
	}
	if _, err := s.users.GetByEmail(ctx, newEmail); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to check email availability: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate email change code: %w", err)
	}
	user.PendingEmail = newEmail
	user.EmailChangeCode = &models.OneTimeCode{Code: code, ExpiresAt: time.Now().UTC().Add(emailChangeCodeTTL)}
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to store email change request: %w", err)
	}

	if err := s.mail.SendEmailChangeCode(newEmail, code); err != nil {
		s.logger.Warn("failed to send email change code",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
	}
	return nil
}

// ConfirmEmailChange consumes the code and swaps the address in. The
// new address counts as verified since the code was mailed to it.
func (s *AuthService) ConfirmEmailChange(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PendingEmail == "" || user.EmailChangeCode == nil {
		return ErrNoPendingEmailSwap
	}
	if !codeMatches(user.EmailChangeCode, code) {
		return ErrInvalidCode
	}

	user.Email = user.PendingEmail
	user.EmailVerified = true
	user.PendingEmail = ""
	user.EmailChangeCode = nil

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// Sessions returns the user's active sessions.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Sessions, nil
}

// RevokeSession revokes one session: the backing token is blacklisted
// for its remaining lifetime and the entry removed.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	session := user.SessionByID(sessionID)
	if session == nil {
		return repositories.ErrNotFound
	}
	if err := s.revokeToken(ctx, session.TokenID, session.CreatedAt); err != nil {
		return err
	}
	user.RemoveSession(sessionID)
	return s.users.Update(ctx, user)
}

// RevokeOtherSessions revokes every session except the one backing the
// current token and returns how many were revoked.
func (s *AuthService) RevokeOtherSessions(ctx context.Context, userID, currentTokenID string) (int, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	before := len(user.Sessions)
	if err := s.revokeSessions(ctx, user, currentTokenID); err != nil {
		return 0, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return 0, err
	}
	return before - len(user.Sessions), nil
}

// DeleteAccount verifies the password, anonymizes the user's orders,
// revokes every session and hard-deletes the account. Orders survive
// without an owner.
func (s *AuthService) DeleteAccount(ctx context.Context, userID, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	// Anonymize before deleting: if this fails the account stays.
	anonymized, err := s.orders.AnonymizeByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to anonymize orders: %w", err)
	}
	s.logger.Info("anonymized orders for deleted account",
		zap.String("user_id", userID), zap.Int64("orders", anonymized))

	if err := s.revokeSessions(ctx, user, ""); err != nil {
		return err
	}
	return s.users.Delete(ctx, userID)
}

// issueToken signs a new bearer token for the user.
func (s *AuthService) issueToken(user *models.User) (string, *Claims, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID: user.ID.Hex(),
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// recordSession appends a session entry and persists it. Bookkeeping
// only: a failure here is logged but never fails the sign-in.
func (s *AuthService) recordSession(ctx context.Context, user *models.User, tokenID string, meta SessionMeta) {
	now := time.Now().UTC()
	user.Sessions = append(user.Sessions, models.Session{
		ID:         uuid.New().String(),
		TokenID:    tokenID,
		Device:     meta.Device,
		Browser:    meta.Browser,
		IPAddress:  meta.IPAddress,
		LastActive: now,
		CreatedAt:  now,
	})
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Warn("failed to record session",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
	}
}

// revokeSessions blacklists and removes every session except the one
// backed by keepTokenID (pass "" to revoke all). Mutates the user; the
// caller persists.
func (s *AuthService) revokeSessions(ctx context.Context, user *models.User, keepTokenID string) error {
	kept := user.Sessions[:0]
	for _, session := range user.Sessions {
		if keepTokenID != "" && session.TokenID == keepTokenID {
			kept = append(kept, session)
			continue
		}
		if err := s.revokeToken(ctx, session.TokenID, session.CreatedAt); err != nil {
			return err
		}
	}
	user.Sessions = kept
	return nil
}

func (s *AuthService) revokeToken(ctx context.Context, tokenID string, issuedAt time.Time) error {
	remaining := s.tokenTTL - time.Now().UTC().Sub(issuedAt)
	return s.blacklist.Revoke(ctx, tokenID, remaining)
}

// NormalizeEmail lowercases and trims an address. Emails are unique
// case-insensitively, so every lookup and write goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// codeMatches compares a one-time code in constant time and checks its
// expiry.
func codeMatches(slot *models.OneTimeCode, code string) bool {
	if slot == nil || slot.Expired(time.Now().UTC()) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(slot.Code), []byte(code)) == 1
}

// generateCode produces a fixed-length numeric one-time code.
func generateCode() (string, error) {
	const digits = "0123456789"
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		buf[i] = digits[n.Int64()]
	}
	return string(buf), nil
}
