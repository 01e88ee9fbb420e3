package models

import "strings"

// Jurisdiction locates a user or record in the administrative hierarchy.
type Jurisdiction struct {
	DistrictID  string `db:"district_id" json:"districtId"`
	TalukID     string `db:"taluk_id" json:"talukId"`
	PanchayatID string `db:"panchayat_id" json:"panchayatId"`
	VillageID   string `db:"village_id" json:"villageId"`
}

// Normalize trims and upper-cases every identifier.
func (j Jurisdiction) Normalize() Jurisdiction {
	clean := func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
	return Jurisdiction{
		DistrictID:  clean(j.DistrictID),
		TalukID:     clean(j.TalukID),
		PanchayatID: clean(j.PanchayatID),
		VillageID:   clean(j.VillageID),
	}
}

// ScopeLevel is how much of the hierarchy a role can see.
type ScopeLevel string

const (
	ScopeOwn       ScopeLevel = "own"
	ScopeVillage   ScopeLevel = "village"
	ScopePanchayat ScopeLevel = "panchayat"
	ScopeTaluk     ScopeLevel = "taluk"
	ScopeDistrict  ScopeLevel = "district"
	ScopeAll       ScopeLevel = "all"
)

// Scope restricts the records visible to an actor.
type Scope struct {
	Level  ScopeLevel
	UserID string
	Jurisdiction
}

// ScopeFor derives the visibility scope of a role.
func ScopeFor(role UserRole, userID string, j Jurisdiction) Scope {
	scope := Scope{UserID: userID, Jurisdiction: j}
	switch role {
	case RoleVillager:
		scope.Level = ScopeOwn
	case RoleVillageIncharge:
		scope.Level = ScopeVillage
	case RolePDO:
		scope.Level = ScopePanchayat
	case RoleTDO:
		scope.Level = ScopeTaluk
	case RoleDDO:
		scope.Level = ScopeDistrict
	case RoleAdmin:
		scope.Level = ScopeAll
	default:
		scope.Level = ScopeOwn
	}
	return scope
}

// Covers reports whether a record owned by ownerID at j is visible in the scope.
func (s Scope) Covers(ownerID string, j Jurisdiction) bool {
	switch s.Level {
	case ScopeAll:
		return true
	case ScopeDistrict:
		return s.DistrictID != "" && s.DistrictID == j.DistrictID
	case ScopeTaluk:
		return s.TalukID != "" && s.TalukID == j.TalukID
	case ScopePanchayat:
		return s.PanchayatID != "" && s.PanchayatID == j.PanchayatID
	case ScopeVillage:
		return s.VillageID != "" && s.VillageID == j.VillageID
	default:
		return s.UserID != "" && s.UserID == ownerID
	}
}

// Key identifies the scope in cache keys.
func (s Scope) Key() string {
	switch s.Level {
	case ScopeAll:
		return "all"
	case ScopeDistrict:
		return "district:" + s.DistrictID
	case ScopeTaluk:
		return "taluk:" + s.TalukID
	case ScopePanchayat:
		return "panchayat:" + s.PanchayatID
	case ScopeVillage:
		return "village:" + s.VillageID
	default:
		return "user:" + s.UserID
	}
}
