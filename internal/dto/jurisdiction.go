package dto

import (
	"strings"

	"github.com/noah-isme/civic-portal-api/internal/models"
)

// JurisdictionInput accepts the legacy alias names still sent by older clients.
type JurisdictionInput struct {
	DistrictID      string `json:"districtId"`
	TalukID         string `json:"talukId"`
	TalukaID        string `json:"talukaId,omitempty"`
	PanchayatID     string `json:"panchayatId"`
	GramPanchayatID string `json:"gramPanchayatId,omitempty"`
	GPID            string `json:"gpId,omitempty"`
	VillageID       string `json:"villageId"`
}

// Resolve collapses aliases into the canonical, normalized jurisdiction.
func (in JurisdictionInput) Resolve() models.Jurisdiction {
	return models.Jurisdiction{
		DistrictID:  in.DistrictID,
		TalukID:     firstNonBlank(in.TalukID, in.TalukaID),
		PanchayatID: firstNonBlank(in.PanchayatID, in.GramPanchayatID, in.GPID),
		VillageID:   in.VillageID,
	}.Normalize()
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
