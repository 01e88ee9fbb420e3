package dto

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/models"
)

// ReportRequest captures POST /reports payload.
type ReportRequest struct {
	Type     models.ReportType   `json:"type" validate:"required,oneof=issues fund_requests summary"`
	Format   models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Status   string              `json:"status" validate:"omitempty,max=32"`
	Category string              `json:"category" validate:"omitempty,max=32"`
	From     *time.Time          `json:"from"`
	To       *time.Time          `json:"to"`
	Language string              `json:"language" validate:"omitempty,max=35"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Type      models.ReportType   `json:"type"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
