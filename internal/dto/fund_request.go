package dto

// CreateFundRequestRequest is submitted by PDOs and village in-charges.
type CreateFundRequestRequest struct {
	Amount  float64 `json:"amount" validate:"required,gt=0"`
	Purpose string  `json:"purpose" validate:"required,max=1000"`
	IssueID *string `json:"issueId" validate:"omitempty,uuid"`
}
