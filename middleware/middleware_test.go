package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carecycle/carecycle-api/config"
	"github.com/carecycle/carecycle-api/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func setupMiddlewareTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("APPENV", "test")

	db, err := config.ConnectDB()
	if err != nil {
		t.Fatalf("failed to connect test DB: %v", err)
	}
	models := []interface{}{&model.User{}, &model.Role{}, &model.Session{}}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	for _, m := range models {
		db.Unscoped().Where("1 = 1").Delete(m)
	}
	t.Cleanup(func() {
		for _, m := range models {
			_ = db.Migrator().DropTable(m)
		}
	})
	return db
}

func performRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("session-token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDatabaseMiddleware_InjectsConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupMiddlewareTestDB(t)

	r := gin.New()
	r.Use(DatabaseMiddleware(db))
	r.GET("/check", func(c *gin.Context) {
		assert.Same(t, db, GetDB(c))
		c.Status(http.StatusOK)
	})

	w := performRequest(r, "GET", "/check", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetDB_NilWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetDB(c))
}

func TestValidateLoginToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupMiddlewareTestDB(t)

	user := model.User{Name: "Nurse", Email: "nurse@example.com", Password: "x", RoleID: 2}
	assert.NoError(t, db.Create(&user).Error)
	session := model.Session{
		UserID:       user.ID,
		SessionToken: "good-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	assert.NoError(t, db.Create(&session).Error)
	expired := model.Session{
		UserID:       user.ID,
		SessionToken: "stale-token",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	assert.NoError(t, db.Create(&expired).Error)

	r := gin.New()
	r.Use(DatabaseMiddleware(db))
	r.Use(ValidateLoginToken())
	r.GET("/protected", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		assert.True(t, ok)
		assert.Equal(t, user.ID, userID)
		roleID, ok := GetRoleID(c)
		assert.True(t, ok)
		assert.EqualValues(t, 2, roleID)
		c.Status(http.StatusOK)
	})

	t.Run("valid token", func(t *testing.T) {
		w := performRequest(r, "GET", "/protected", "good-token")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		w := performRequest(r, "GET", "/protected", "stale-token")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		w := performRequest(r, "GET", "/protected", "bogus")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := performRequest(r, "GET", "/protected", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware())
	r.GET("/any", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := performRequest(r, "OPTIONS", "/any", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "session-token")
}
