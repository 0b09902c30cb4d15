package database

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/pkg/errors"
)

func TestMapDriverError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"pq unique violation", &pq.Error{Code: "23505"}, "CONFLICT", http.StatusConflict},
		{"pq not null", &pq.Error{Code: "23502", Column: "document"}, "VALIDATION_ERROR", http.StatusBadRequest},
		{"pq missing table", &pq.Error{Code: "42P01"}, "INTERNAL_ERROR", http.StatusInternalServerError},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062}, "CONFLICT", http.StatusConflict},
		{"mysql bad null", &mysql.MySQLError{Number: 1048}, "VALIDATION_ERROR", http.StatusBadRequest},
		{"mysql missing table", &mysql.MySQLError{Number: 1146}, "INTERNAL_ERROR", http.StatusInternalServerError},
		{"wrapped pq error", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), "CONFLICT", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := MapDriverError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode)
		})
	}
}

func TestMapDriverError_Unmapped(t *testing.T) {
	assert.Nil(t, MapDriverError(&pq.Error{Code: "40001"}))
	assert.Nil(t, MapDriverError(&mysql.MySQLError{Number: 1213}))
	assert.Nil(t, MapDriverError(errors.ErrInternal))
}

func TestMapDriverError_NotNullColumn(t *testing.T) {
	appErr := MapDriverError(&pq.Error{Code: "23502"})
	require.NotNil(t, appErr)
	assert.Contains(t, appErr.Details, "required field")
}
