package dto

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/pkg/chart"
)

// DashboardResponse is the role-scoped overview.
type DashboardResponse struct {
	Scope                string         `json:"scope"`
	Issues               IssueStats     `json:"issues"`
	Funds                FundStats      `json:"funds"`
	PendingVerifications *int           `json:"pendingVerifications,omitempty"`
	Recent               []models.Issue `json:"recent"`
	GeneratedAt          time.Time      `json:"generatedAt"`
}

// IssueStats aggregates issues visible in the scope.
type IssueStats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"byStatus"`
	ByCategory  map[string]int `json:"byCategory"`
	Escalated   int            `json:"escalated"`
	Overdue     int            `json:"overdue"`
	StatusChart []chart.Slice  `json:"statusChart"`
}

// FundStats aggregates fund requests visible in the scope.
type FundStats struct {
	Total       int               `json:"total"`
	TotalAmount float64           `json:"totalAmount"`
	ByStatus    []FundStatusTotal `json:"byStatus"`
	ByPriority  map[string]int    `json:"byPriority"`
}

// FundStatusTotal is the count and amount for one status.
type FundStatusTotal struct {
	Status string  `db:"status" json:"status"`
	Count  int     `db:"count" json:"count"`
	Amount float64 `db:"amount" json:"amount"`
}

// CountByKey is a grouped count row.
type CountByKey struct {
	Key   string `db:"key" json:"key"`
	Count int    `db:"count" json:"count"`
}
