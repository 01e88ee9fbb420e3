package dto

import "github.com/noah-isme/civic-portal-api/internal/models"

// RegisterRequest is the public sign-up payload. Jurisdiction fields sit at the top level.
type RegisterRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	FullName string          `json:"fullName" validate:"required,max=120"`
	Phone    string          `json:"phone" validate:"omitempty,max=20"`
	Role     models.UserRole `json:"role" validate:"required,oneof=VILLAGER VILLAGE_INCHARGE PDO TDO DDO"`
	JurisdictionInput
}

// ToModel converts the payload into the service request.
func (r RegisterRequest) ToModel() models.RegisterRequest {
	return models.RegisterRequest{
		Email:        r.Email,
		Password:     r.Password,
		FullName:     r.FullName,
		Phone:        r.Phone,
		Role:         r.Role,
		Jurisdiction: r.Resolve(),
	}
}

// VerifyUserRequest is an admin decision on a pending profile.
type VerifyUserRequest struct {
	Decision models.VerificationStatus `json:"decision" validate:"required,oneof=VERIFIED REJECTED"`
	Reason   string                    `json:"reason" validate:"omitempty,max=500"`
}
