package dto

import "github.com/noah-isme/civic-portal-api/internal/workflow"

// StatusCatalogResponse serves the localized status table.
type StatusCatalogResponse struct {
	Language      string                 `json:"language"`
	Issue         []workflow.StatusLabel `json:"issue"`
	FundRequest   []workflow.StatusLabel `json:"fundRequest"`
	Transitions   []TransitionRule       `json:"transitions"`
	Priorities    []workflow.Priority    `json:"priorities"`
	IssueSLAHours int                    `json:"issueSlaHours"`
}

// TransitionRule is a flattened workflow table row.
type TransitionRule struct {
	Entity      workflow.Entity   `json:"entity"`
	Action      workflow.Action   `json:"action"`
	From        []workflow.Status `json:"from"`
	To          workflow.Status   `json:"to,omitempty"`
	Roles       []workflow.Role   `json:"roles,omitempty"`
	LevelScoped bool              `json:"levelScoped,omitempty"`
}
