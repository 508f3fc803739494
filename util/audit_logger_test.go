package util

import (
	"strings"
	"testing"

	"github.com/carecycle/carecycle-api/config"
	"github.com/carecycle/carecycle-api/model"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeLogValue(t *testing.T) {
	assert.Equal(t, "a b c", sanitizeLogValue("a\nb\rc"))
	assert.Equal(t, "tabbed value", sanitizeLogValue("tabbed\tvalue"))

	long := strings.Repeat("x", 300)
	sanitized := sanitizeLogValue(long)
	assert.Len(t, sanitized, 203)
	assert.True(t, strings.HasSuffix(sanitized, "..."))
}

func TestLogAuditEvent_PersistsToDB(t *testing.T) {
	t.Setenv("APPENV", "test")
	db, err := config.ConnectDB()
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.AuditLog{}))
	db.Unscoped().Where("1 = 1").Delete(&model.AuditLog{})
	t.Cleanup(func() {
		SetAuditLoggerDB(nil)
		_ = db.Migrator().DropTable(&model.AuditLog{})
	})

	SetAuditLoggerDB(db)
	LogAuditEvent(AuditEvent{
		EventType: EventLoginSuccess,
		UserID:    "7",
		Email:     "nurse@example.com",
		IP:        "203.0.113.9",
		Message:   "logged in",
		Details:   map[string]interface{}{"method": "POST"},
	})

	var record model.AuditLog
	assert.NoError(t, db.Where("user_id = ?", "7").First(&record).Error)
	assert.Equal(t, string(EventLoginSuccess), record.EventType)
	assert.Equal(t, "nurse@example.com", record.Email)
	assert.NotEmpty(t, record.Details)
}

func TestLogAuditEvent_NoDBDoesNotPanic(t *testing.T) {
	SetAuditLoggerDB(nil)
	assert.NotPanics(t, func() {
		LogLoginFailure("ghost@example.com", "203.0.113.9", "curl", "user not found")
	})
}
