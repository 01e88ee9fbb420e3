// Package realtime pushes workflow events to connected websocket clients.
package realtime

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/models"
)

// EventType names a feed message.
type EventType string

const (
	IssueCreated            EventType = "issue.created"
	IssueTransitioned       EventType = "issue.transitioned"
	FundRequestCreated      EventType = "fund_request.created"
	FundRequestTransitioned EventType = "fund_request.transitioned"
)

// Event is one feed message. OwnerID and Jurisdiction route the event and are not sent.
type Event struct {
	Type         EventType           `json:"type"`
	EntityID     string              `json:"entityId"`
	Data         any                 `json:"data"`
	At           time.Time           `json:"at"`
	OwnerID      string              `json:"-"`
	Jurisdiction models.Jurisdiction `json:"-"`
}
