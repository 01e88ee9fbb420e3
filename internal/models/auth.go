package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest creates a new profile. Authority roles start unverified.
type RegisterRequest struct {
	Email        string       `json:"email" validate:"required,email"`
	Password     string       `json:"password" validate:"required,min=8"`
	FullName     string       `json:"fullName" validate:"required"`
	Phone        string       `json:"phone" validate:"omitempty,max=20"`
	Role         UserRole     `json:"role" validate:"required,oneof=VILLAGER VILLAGE_INCHARGE PDO TDO DDO"`
	Jurisdiction Jurisdiction `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	FullName           string             `json:"fullName"`
	Role               UserRole           `json:"role"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	Jurisdiction       Jurisdiction       `json:"jurisdiction"`
}

// NewUserInfo projects a user for responses.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{
		ID:                 u.ID,
		Email:              u.Email,
		FullName:           u.FullName,
		Role:               u.Role,
		VerificationStatus: u.VerificationStatus,
		Jurisdiction:       u.Jurisdiction,
	}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID       string             `json:"user_id"`
	Role         UserRole           `json:"role"`
	Email        string             `json:"email"`
	FullName     string             `json:"full_name"`
	Verification VerificationStatus `json:"verification"`
	Jurisdiction Jurisdiction       `json:"jurisdiction"`
	jwt.RegisteredClaims
}

// Scope derives the visibility scope carried by the token.
func (c *JWTClaims) Scope() Scope {
	return ScopeFor(c.Role, c.UserID, c.Jurisdiction)
}

// Verified reports whether the token belongs to a verified profile.
func (c *JWTClaims) Verified() bool {
	return c.Verification == VerificationVerified
}
