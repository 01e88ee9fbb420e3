package workflow

import "strings"

// Priority is the derived urgency of a fund request. It is never stored.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

const (
	DefaultHighAmount   = 100000
	DefaultMediumAmount = 50000
)

// DefaultPriorityKeywords promote a request to high priority regardless of amount.
var DefaultPriorityKeywords = []string{"emergency", "relief", "disaster", "flood", "drought", "medical"}

// PriorityPolicy classifies fund requests. Zero values fall back to the defaults.
type PriorityPolicy struct {
	HighAmount   float64
	MediumAmount float64
	Keywords     []string
}

// Normalized returns p with defaults filled in and keywords trimmed and lower-cased.
// Store queries that classify in SQL use it so they agree with Classify.
func (p PriorityPolicy) Normalized() PriorityPolicy {
	out := PriorityPolicy{HighAmount: p.HighAmount, MediumAmount: p.MediumAmount}
	if out.HighAmount <= 0 {
		out.HighAmount = DefaultHighAmount
	}
	if out.MediumAmount <= 0 {
		out.MediumAmount = DefaultMediumAmount
	}
	keywords := p.Keywords
	if len(keywords) == 0 {
		keywords = DefaultPriorityKeywords
	}
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			out.Keywords = append(out.Keywords, kw)
		}
	}
	return out
}

// Classify applies the keyword override first, then the amount tiers.
func (p PriorityPolicy) Classify(amount float64, purpose string) Priority {
	n := p.Normalized()
	lowered := strings.ToLower(purpose)
	for _, kw := range n.Keywords {
		if strings.Contains(lowered, kw) {
			return PriorityHigh
		}
	}
	switch {
	case amount >= n.HighAmount:
		return PriorityHigh
	case amount >= n.MediumAmount:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}
