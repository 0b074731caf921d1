package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role of a user account. Flat enum, no hierarchy.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Address is a postal address embedded in the user document.
type Address struct {
	Street     string `bson:"street,omitempty" json:"street,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postal_code,omitempty" json:"postal_code,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`
}

// Preferences is the per-user settings bag.
type Preferences struct {
	Newsletter   bool   `bson:"newsletter" json:"newsletter"`
	OrderUpdates bool   `bson:"order_updates" json:"order_updates"`
	Theme        string `bson:"theme,omitempty" json:"theme,omitempty"`
	Currency     string `bson:"currency,omitempty" json:"currency,omitempty"`
	Locale       string `bson:"locale,omitempty" json:"locale,omitempty"`
}

// OneTimeCode is a short-lived numeric code for email verification,
// password reset, or email change. The slot is cleared once consumed.
type OneTimeCode struct {
	Code      string    `bson:"code" json:"-"`
	ExpiresAt time.Time `bson:"expires_at" json:"-"`
}

// Expired reports whether the code is past its expiry at the given time.
func (c *OneTimeCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Session is one issued token, recorded for the active-sessions view.
// TokenID is the jti of the JWT backing this session; revoking the
// session blacklists that jti until the token would have expired.
type Session struct {
	ID         string    `bson:"id" json:"id"`
	TokenID    string    `bson:"token_id" json:"-"`
	Device     string    `bson:"device,omitempty" json:"device,omitempty"`
	Browser    string    `bson:"browser,omitempty" json:"browser,omitempty"`
	IPAddress  string    `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	LastActive time.Time `bson:"last_active" json:"last_active"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// User is a storefront account. The password hash, one-time codes and
// session token IDs never appear in serialized form.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email         string             `bson:"email" json:"email"`
	Password      string             `bson:"password" json:"-"`
	Name          string             `bson:"name" json:"name"`
	FirstName     string             `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName      string             `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Phone         string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Address       Address            `bson:"address,omitempty" json:"address,omitempty"`
	Preferences   Preferences        `bson:"preferences,omitempty" json:"preferences,omitempty"`
	EmailVerified bool               `bson:"email_verified" json:"email_verified"`

	VerificationCode *OneTimeCode `bson:"verification_code,omitempty" json:"-"`
	ResetCode        *OneTimeCode `bson:"reset_code,omitempty" json:"-"`
	EmailChangeCode  *OneTimeCode `bson:"email_change_code,omitempty" json:"-"`
	PendingEmail     string       `bson:"pending_email,omitempty" json:"-"`

	Sessions      []Session  `bson:"sessions,omitempty" json:"-"`
	Role          Role       `bson:"role" json:"role"`
	LoyaltyPoints int        `bson:"loyalty_points" json:"loyalty_points"`
	LastLogin     *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
}

// SessionByID returns the session with the given ID, or nil.
func (u *User) SessionByID(id string) *Session {
	for i := range u.Sessions {
		if u.Sessions[i].ID == id {
			return &u.Sessions[i]
		}
	}
	return nil
}

// RemoveSession drops the session with the given ID from the list and
// reports whether it was present.
func (u *User) RemoveSession(id string) bool {
	for i := range u.Sessions {
		if u.Sessions[i].ID == id {
			u.Sessions = append(u.Sessions[:i], u.Sessions[i+1:]...)
			return true
		}
	}
	return false
}
