package service

import (
	"time"

	"github.com/noah-isme/civic-portal-api/internal/dto"
	"github.com/noah-isme/civic-portal-api/internal/workflow"
)

// MetaService serves the read-only workflow catalog clients render from.
type MetaService struct {
	issueSLA time.Duration
	rules    []dto.TransitionRule
}

// NewMetaService flattens the transition tables once; they never change at runtime.
func NewMetaService(issueSLA time.Duration) *MetaService {
	rules := make([]dto.TransitionRule, 0)
	for _, entity := range []workflow.Entity{workflow.EntityIssue, workflow.EntityFundRequest} {
		for _, r := range workflow.Table(entity) {
			rules = append(rules, dto.TransitionRule{
				Entity:      entity,
				Action:      r.Action,
				From:        r.From,
				To:          r.To,
				Roles:       r.Roles,
				LevelScoped: r.LevelScoped,
			})
		}
	}
	return &MetaService{issueSLA: issueSLA, rules: rules}
}

// StatusCatalog returns every status label in the best match for the given language preferences.
func (s *MetaService) StatusCatalog(prefs ...string) *dto.StatusCatalogResponse {
	lang := workflow.MatchLanguage(prefs...)
	return &dto.StatusCatalogResponse{
		Language:      lang,
		Issue:         localize(workflow.EntityIssue, lang),
		FundRequest:   localize(workflow.EntityFundRequest, lang),
		Transitions:   s.rules,
		Priorities:    []workflow.Priority{workflow.PriorityHigh, workflow.PriorityMedium, workflow.PriorityLow},
		IssueSLAHours: int(s.issueSLA / time.Hour),
	}
}

func localize(entity workflow.Entity, lang string) []workflow.StatusLabel {
	infos := workflow.Catalog(entity)
	out := make([]workflow.StatusLabel, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Localize(lang))
	}
	return out
}
