package util

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/carecycle/carecycle-api/config"
	"github.com/gin-gonic/gin"
)

// SanitizeError maps an internal error to an HTTP status and a message safe
// to show to callers. Matching is on substrings of the error text so driver
// and GORM error wrappers all land in the right bucket.
func SanitizeError(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, "Internal server error"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists") || strings.Contains(msg, "unique constraint"):
		return http.StatusConflict, "A record with the same identifying fields already exists"
	case strings.Contains(msg, "record not found") || strings.Contains(msg, "not found"):
		return http.StatusNotFound, "The requested record was not found"
	case strings.Contains(msg, "foreign key") || strings.Contains(msg, "constraint failed"):
		return http.StatusBadRequest, "The request references a record that does not exist"
	case strings.Contains(msg, "inactive"):
		return http.StatusBadRequest, "The referenced record is inactive"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// RespondWithError writes a sanitized error envelope. Outside production the
// underlying error string is included to ease debugging; in production it is
// replaced by the sanitized message.
func RespondWithError(c *gin.Context, msg string, err error) {
	status, publicMsg := SanitizeError(err)
	if msg == "" {
		msg = publicMsg
	}

	detail := publicMsg
	cfg := config.LoadConfig()
	if cfg == nil || cfg.AppEnv != "production" {
		if err != nil {
			detail = err.Error()
		}
	}

	c.JSON(status, APIResponse{
		Success: false,
		Error:   detail,
		Msg:     msg,
		Data:    map[string]interface{}{},
	})
}

// ErrOccurrenceNotPending flags completion/skip of an occurrence that has
// already been handled. It carries the "duplicate" marker so SanitizeError
// maps it to a conflict.
func ErrOccurrenceNotPending(status string) error {
	return fmt.Errorf("occurrence already handled: duplicate completion attempt (status %s)", status)
}
