package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civic-portal-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userColumnNames = []string{"id", "email", "password_hash", "full_name", "phone", "role", "verification_status", "verified_by", "verified_at", "rejection_reason", "district_id", "taluk_id", "panchayat_id", "village_id", "active", "last_login", "created_at", "updated_at"}

func userRow(rows *sqlmock.Rows, id, email string, role models.UserRole, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, email, "hash", "User", "", string(role), string(models.VerificationVerified), nil, nil, nil, "D1", "T1", "P1", "V1", true, now, now, now)
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := userRow(sqlmock.NewRows(userColumnNames), "1", "user@example.com", models.RolePDO, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+userColumns+" FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "User@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, "P1", user.PanchayatID)
	assert.True(t, user.Verified())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{ID: "1", UserID: "u1", Token: "token", ExpiresAt: time.Now(), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersFiltersPendingAuthorities(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	listRows := userRow(sqlmock.NewRows(userColumnNames), "1", "a@example.com", models.RoleTDO, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+userColumns+" FROM users WHERE 1=1 AND role = $1 AND verification_status = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.RoleTDO, models.VerificationPending).
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1 AND verification_status = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	role := models.RoleTDO
	pending := models.VerificationPending
	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, Verification: &pending})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetVerificationOnlyDecidesPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET verification_status = $2")).
		WithArgs("u1", models.VerificationVerified, "admin", now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetVerification(context.Background(), "u1", models.VerificationVerified, "admin", nil, now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET verification_status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SetVerification(context.Background(), "u1", models.VerificationRejected, "admin", nil, now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserLowercasesEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	user := &models.User{Email: "Asha@Example.com", Role: models.RoleVillager}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.Equal(t, "asha@example.com", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
