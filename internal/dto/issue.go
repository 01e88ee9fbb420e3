package dto

import "github.com/noah-isme/civic-portal-api/internal/models"

// CreateIssueRequest is submitted by villagers and village in-charges.
type CreateIssueRequest struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"required,max=4000"`
	Category    models.IssueCategory `json:"category" validate:"required,oneof=ROAD WATER SANITATION ELECTRICITY HEALTH EDUCATION OTHER"`
	Location    string               `json:"location" validate:"omitempty,max=300"`
	Latitude    *float64             `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64             `json:"longitude" validate:"omitempty,longitude"`
}

// TransitionRequest is the body of every workflow action endpoint.
// Comment is accepted as an alias of Note for fund request actions.
type TransitionRequest struct {
	WorkerID string `json:"workerId" validate:"omitempty,max=64"`
	Note     string `json:"note" validate:"omitempty,max=1000"`
	Comment  string `json:"comment" validate:"omitempty,max=1000"`
	Version  *int   `json:"version" validate:"omitempty,min=1"`
}

// NoteText returns the note, falling back to comment.
func (r TransitionRequest) NoteText() string {
	if r.Note != "" {
		return r.Note
	}
	return r.Comment
}

// TimelineResponse lists an entity's workflow events oldest first.
type TimelineResponse struct {
	EntityID string                 `json:"entityId"`
	Events   []models.WorkflowEvent `json:"events"`
}
