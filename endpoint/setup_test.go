package endpoint

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/carecycle/carecycle-api/config"
	"github.com/carecycle/carecycle-api/middleware"
	"github.com/carecycle/carecycle-api/model"
	"github.com/carecycle/carecycle-api/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// endpointTestModels defines the standard set of models migrated for endpoint tests
var endpointTestModels = []interface{}{
	&model.Patient{},
	&model.CareItem{},
	&model.PatientSchedule{},
	&model.ScheduleHistory{},
	&model.User{},
	&model.Role{},
	&model.Session{},
	&model.AuditLog{},
}

// setupEndpointTestDB initializes a test database with all standard models migrated.
// It sets the APPENV to "test" and initializes the JWT secret for the test.
// Cleanup is automatically registered via t.Cleanup().
func setupEndpointTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Set test environment
	t.Setenv("APPENV", "test")
	t.Setenv("JWTSECRET", "test-secret-123")
	util.SetJWTSecret("test-secret-123")

	db, err := config.ConnectDB()
	if err != nil {
		t.Fatalf("failed to connect test DB: %v", err)
	}

	if err := db.AutoMigrate(endpointTestModels...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	// Clean up all tables
	for _, m := range endpointTestModels {
		db.Unscoped().Where("1 = 1").Delete(m)
	}

	t.Cleanup(func() {
		for _, m := range endpointTestModels {
			_ = db.Migrator().DropTable(m)
		}
	})

	return db
}

// setupEndpointTest returns a Gin engine and database connection configured for endpoint tests.
func setupEndpointTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupEndpointTestDB(t)
	r := gin.New()
	r.Use(middleware.DatabaseMiddleware(db))
	return r, db
}

// performJSONRequest issues a request with an optional JSON body against the test router.
func performJSONRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// parseAPIResponse decodes the standard response envelope.
func parseAPIResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response body %q: %v", w.Body.String(), err)
	}
	return resp
}

// assertStatus asserts that the response HTTP status code matches the expected value
func assertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, w.Code)
}

// createTestPatient seeds a patient row directly.
func createTestPatient(t *testing.T, db *gorm.DB, name string) model.Patient {
	t.Helper()
	patient := model.Patient{FullName: name, PhoneNumber: "010-0000-0001", Age: 70}
	if err := db.Create(&patient).Error; err != nil {
		t.Fatalf("failed to create test patient: %v", err)
	}
	return patient
}

// createTestCareItem seeds a care item row directly.
func createTestCareItem(t *testing.T, db *gorm.DB, code string, intervalWeeks int) model.CareItem {
	t.Helper()
	item := model.CareItem{
		Name:          "Item " + code,
		Code:          code,
		ItemType:      model.ItemTypeProcedure,
		IntervalWeeks: intervalWeeks,
		Active:        true,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("failed to create test care item: %v", err)
	}
	return item
}
