package models

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleVillager        UserRole = "VILLAGER"
	RoleVillageIncharge UserRole = "VILLAGE_INCHARGE"
	RolePDO             UserRole = "PDO"
	RoleTDO             UserRole = "TDO"
	RoleDDO             UserRole = "DDO"
	RoleAdmin           UserRole = "ADMIN"
)

// Roles lists every role in escalation order, villagers first.
var Roles = []UserRole{RoleVillager, RoleVillageIncharge, RolePDO, RoleTDO, RoleDDO, RoleAdmin}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAuthority is true for every role that acts on other people's records.
func (r UserRole) IsAuthority() bool {
	return r.Valid() && r != RoleVillager
}

// Workflow converts the role to the workflow engine's vocabulary.
func (r UserRole) Workflow() workflow.Role {
	return workflow.Role(r)
}

// VerificationStatus tracks admin approval of a profile.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// User represents an application user stored in the users table.
type User struct {
	ID                 string             `db:"id" json:"id"`
	Email              string             `db:"email" json:"email"`
	PasswordHash       string             `db:"password_hash" json:"-"`
	FullName           string             `db:"full_name" json:"fullName"`
	Phone              string             `db:"phone" json:"phone,omitempty"`
	Role               UserRole           `db:"role" json:"role"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verificationStatus"`
	VerifiedBy         *string            `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt         *time.Time         `db:"verified_at" json:"verifiedAt,omitempty"`
	RejectionReason    *string            `db:"rejection_reason" json:"rejectionReason,omitempty"`
	Jurisdiction
	Active    bool       `db:"active" json:"active"`
	LastLogin *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// Verified reports whether the profile may act on workflows.
func (u *User) Verified() bool {
	return u.VerificationStatus == VerificationVerified
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role         *UserRole
	Verification *VerificationStatus
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}
