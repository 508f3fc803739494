package endpoint

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carecycle/carecycle-api/middleware"
	"github.com/carecycle/carecycle-api/model"
	"github.com/carecycle/carecycle-api/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// seedUser creates a ready-to-login user with an Argon2 password hash and
// ensures the default roles exist.
func seedUser(t *testing.T, db *gorm.DB, email, password string) model.User {
	t.Helper()
	if err := model.SeedRoles(db); err != nil {
		t.Fatalf("failed to seed roles: %v", err)
	}

	salt, err := util.GenerateSalt()
	assert.NoError(t, err)
	hashed, err := util.HashPasswordArgon2(password, salt)
	assert.NoError(t, err)

	user := model.User{
		Name:         "Test Nurse",
		Email:        email,
		Password:     hashed,
		PasswordSalt: salt,
		RoleID:       2,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

// performRequestWithToken issues a JSON request carrying a session-token header.
func performRequestWithToken(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("session-token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSignup(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/signup", Signup)

	w := performJSONRequest(r, "POST", "/signup", map[string]interface{}{
		"name":     "  Lee   Hana ",
		"email":    "hana@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusCreated)

	var user model.User
	assert.NoError(t, db.Where("email = ?", "hana@example.com").First(&user).Error)
	assert.Equal(t, "Lee Hana", user.Name)
	assert.True(t, strings.HasPrefix(user.Password, "argon2id$"))
	assert.NotEmpty(t, user.PasswordSalt)
	assert.EqualValues(t, 2, user.RoleID)
}

func TestSignup_RejectsShortPassword(t *testing.T) {
	r, _ := setupEndpointTest(t)
	r.POST("/signup", Signup)

	w := performJSONRequest(r, "POST", "/signup", map[string]interface{}{
		"name":     "Lee Hana",
		"email":    "hana@example.com",
		"password": "short",
	})
	assertStatus(t, w, http.StatusBadRequest)
}

func TestSignup_RejectsDuplicateEmail(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/signup", Signup)

	seedUser(t, db, "hana@example.com", "password123")

	w := performJSONRequest(r, "POST", "/signup", map[string]interface{}{
		"name":     "Lee Hana",
		"email":    "hana@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusBadRequest)
}

func TestLogin_Success(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/login", Login)

	user := seedUser(t, db, "nurse@example.com", "password123")

	w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
		"email":    "nurse@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusOK)

	resp := parseAPIResponse(t, w)
	data := resp["data"].(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	assert.Equal(t, "User", data["role"])
	assert.EqualValues(t, user.ID, data["user_id"])

	var session model.Session
	assert.NoError(t, db.Where("user_id = ?", user.ID).First(&session).Error)
	assert.Equal(t, data["token"], session.SessionToken)
	assert.True(t, session.ExpiresAt.After(time.Now()))
}

func TestLogin_InvalidPassword(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/login", Login)

	user := seedUser(t, db, "nurse@example.com", "password123")

	w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
		"email":    "nurse@example.com",
		"password": "wrongpassword",
	})
	assertStatus(t, w, http.StatusBadRequest)

	var reloaded model.User
	assert.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Equal(t, 1, reloaded.FailedAttempts)
}

func TestLogin_UnknownEmail(t *testing.T) {
	r, _ := setupEndpointTest(t)
	r.POST("/login", Login)

	w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
		"email":    "ghost@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusBadRequest)
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/login", Login)

	user := seedUser(t, db, "nurse@example.com", "password123")

	for i := 0; i < maxFailedAttempts; i++ {
		w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
			"email":    "nurse@example.com",
			"password": "wrongpassword",
		})
		assertStatus(t, w, http.StatusBadRequest)
	}

	var locked model.User
	assert.NoError(t, db.First(&locked, user.ID).Error)
	assert.NotNil(t, locked.LockedUntil)

	// Even the right password is rejected while the lock holds.
	w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
		"email":    "nurse@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusBadRequest)
	resp := parseAPIResponse(t, w)
	assert.Contains(t, resp["msg"], "locked")
}

func TestLogin_ResetsFailedAttemptsOnSuccess(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/login", Login)

	user := seedUser(t, db, "nurse@example.com", "password123")
	assert.NoError(t, db.Model(&user).Update("failed_attempts", 3).Error)

	w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
		"email":    "nurse@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusOK)

	var reloaded model.User
	assert.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Zero(t, reloaded.FailedAttempts)
}

func TestLogin_UpgradesLegacyPasswordHash(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/login", Login)

	assert.NoError(t, model.SeedRoles(db))
	legacy := model.User{
		Name:     "Legacy Nurse",
		Email:    "legacy@example.com",
		Password: util.HashPassword("password123"),
		RoleID:   2,
	}
	assert.NoError(t, db.Create(&legacy).Error)

	w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
		"email":    "legacy@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusOK)

	var upgraded model.User
	assert.NoError(t, db.First(&upgraded, legacy.ID).Error)
	assert.True(t, strings.HasPrefix(upgraded.Password, "argon2id$"))
	assert.NotEmpty(t, upgraded.PasswordSalt)
}

func TestLogout(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.POST("/login", Login)
	r.DELETE("/logout", Logout)

	user := seedUser(t, db, "nurse@example.com", "password123")

	w := performJSONRequest(r, "POST", "/login", map[string]interface{}{
		"email":    "nurse@example.com",
		"password": "password123",
	})
	assertStatus(t, w, http.StatusOK)
	resp := parseAPIResponse(t, w)
	token := resp["data"].(map[string]interface{})["token"].(string)

	w = performRequestWithToken(r, "DELETE", "/logout", token, nil)
	assertStatus(t, w, http.StatusOK)

	var count int64
	db.Model(&model.Session{}).Where("user_id = ?", user.ID).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestLogout_MissingToken(t *testing.T) {
	r, _ := setupEndpointTest(t)
	r.DELETE("/logout", Logout)

	w := performRequestWithToken(r, "DELETE", "/logout", "", nil)
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestLogout_UnknownToken(t *testing.T) {
	r, _ := setupEndpointTest(t)
	r.DELETE("/logout", Logout)

	w := performRequestWithToken(r, "DELETE", "/logout", "no-such-token", nil)
	assertStatus(t, w, http.StatusBadRequest)
}

func TestValidateToken(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.GET("/token/validate", ValidateToken)

	user := seedUser(t, db, "nurse@example.com", "password123")
	session := model.Session{
		UserID:       user.ID,
		SessionToken: "valid-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	assert.NoError(t, db.Create(&session).Error)

	w := performRequestWithToken(r, "GET", "/token/validate", "valid-token", nil)
	assertStatus(t, w, http.StatusOK)
	resp := parseAPIResponse(t, w)
	assert.Equal(t, true, resp["success"])
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "User", data["role"])
}

func TestValidateToken_Expired(t *testing.T) {
	r, db := setupEndpointTest(t)
	r.GET("/token/validate", ValidateToken)

	user := seedUser(t, db, "nurse@example.com", "password123")
	session := model.Session{
		UserID:       user.ID,
		SessionToken: "expired-token",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	assert.NoError(t, db.Create(&session).Error)

	w := performRequestWithToken(r, "GET", "/token/validate", "expired-token", nil)
	assertStatus(t, w, http.StatusUnauthorized)
	resp := parseAPIResponse(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Invalid or expired session token", resp["msg"])
}

func TestValidateToken_Missing(t *testing.T) {
	r, _ := setupEndpointTest(t)
	r.GET("/token/validate", ValidateToken)

	w := performRequestWithToken(r, "GET", "/token/validate", "", nil)
	assertStatus(t, w, http.StatusUnauthorized)
	resp := parseAPIResponse(t, w)
	assert.Equal(t, false, resp["success"])
}

func TestUpdateUser_ChangesNameAndInvalidatesSessionsOnPasswordChange(t *testing.T) {
	r, db := setupEndpointTest(t)
	user := seedUser(t, db, "nurse@example.com", "password123")
	session := model.Session{UserID: user.ID, SessionToken: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}
	assert.NoError(t, db.Create(&session).Error)

	r.PATCH("/user", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, user.ID)
		UpdateUser(c)
	})

	w := performJSONRequest(r, "PATCH", "/user", map[string]interface{}{
		"name":     "Renamed Nurse",
		"password": "newpassword123",
	})
	assertStatus(t, w, http.StatusOK)

	var reloaded model.User
	assert.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Equal(t, "Renamed Nurse", reloaded.Name)
	assert.True(t, strings.HasPrefix(reloaded.Password, "argon2id$"))

	var count int64
	db.Model(&model.Session{}).Where("user_id = ?", user.ID).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestUpdateUser_RejectsTakenEmail(t *testing.T) {
	r, db := setupEndpointTest(t)
	user := seedUser(t, db, "nurse@example.com", "password123")
	other := model.User{Name: "Other", Email: "taken@example.com", Password: "x", RoleID: 2}
	assert.NoError(t, db.Create(&other).Error)

	r.PATCH("/user", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, user.ID)
		UpdateUser(c)
	})

	w := performJSONRequest(r, "PATCH", "/user", map[string]interface{}{
		"email": "taken@example.com",
	})
	assertStatus(t, w, http.StatusBadRequest)
}
