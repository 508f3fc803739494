package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"nil error", nil, http.StatusInternalServerError},
		{"duplicate entry", errors.New("Error 1062: Duplicate entry 'CATH01' for key 'code'"), http.StatusConflict},
		{"already exists", errors.New("active schedule already exists for this patient and care item"), http.StatusConflict},
		{"unique constraint", errors.New("UNIQUE constraint failed: care_items.code"), http.StatusConflict},
		{"gorm record not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("patient not found: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
		{"foreign key", errors.New("FOREIGN KEY constraint failed"), http.StatusBadRequest},
		{"inactive record", errors.New("care item CATH01 is inactive"), http.StatusBadRequest},
		{"unknown error", errors.New("dial tcp: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := SanitizeError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestSanitizeError_UniqueConstraintBeatsNotFound(t *testing.T) {
	// An error mentioning both duplication and a lookup miss maps to conflict.
	status, _ := SanitizeError(errors.New("duplicate row, original not found"))
	assert.Equal(t, http.StatusConflict, status)
}

func TestErrOccurrenceNotPending(t *testing.T) {
	err := ErrOccurrenceNotPending("completed")
	assert.Contains(t, err.Error(), "completed")

	// Already-handled occurrences surface as conflicts, not server errors.
	status, _ := SanitizeError(err)
	assert.Equal(t, http.StatusConflict, status)
}
