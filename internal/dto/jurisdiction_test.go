package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/models"
)

func TestRegisterRequestResolvesAliases(t *testing.T) {
	body := `{"email":"a@b.in","password":"secret123","fullName":"Asha","role":"PDO",
		"districtId":" mys ","talukaId":"hunsur","gramPanchayatId":"gp-7","gpId":"ignored","villageId":"v1"}`

	var req RegisterRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	got := req.ToModel()
	assert.Equal(t, models.Jurisdiction{DistrictID: "MYS", TalukID: "HUNSUR", PanchayatID: "GP-7", VillageID: "V1"}, got.Jurisdiction)
	assert.Equal(t, models.RolePDO, got.Role)
}

func TestCanonicalNameWinsOverAlias(t *testing.T) {
	in := JurisdictionInput{PanchayatID: "P1", GPID: "P2", TalukID: " ", TalukaID: "t9"}
	j := in.Resolve()
	assert.Equal(t, "P1", j.PanchayatID)
	assert.Equal(t, "T9", j.TalukID)
}

func TestTransitionNoteFallsBackToComment(t *testing.T) {
	assert.Equal(t, "ok", TransitionRequest{Comment: "ok"}.NoteText())
	assert.Equal(t, "n", TransitionRequest{Note: "n", Comment: "c"}.NoteText())
}
