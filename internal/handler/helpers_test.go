package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/middleware"
	"github.com/noah-isme/civic-portal-api/internal/models"
)

type responseEnvelope struct {
	Data       map[string]interface{} `json:"data"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination *models.Pagination     `json:"pagination"`
	Error      *struct {
		Code string `json:"code"`
	} `json:"error"`
}

var panchayatP1 = models.Jurisdiction{DistrictID: "D1", TalukID: "T1", PanchayatID: "P1", VillageID: "V1"}

func claimsFor(role models.UserRole, id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: role, Verification: models.VerificationVerified, Jurisdiction: panchayatP1}
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func authedContext(method, path string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	c, w := newGinContext(method, path, body)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
