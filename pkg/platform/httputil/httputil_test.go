package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "licensewatch/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		code        string
		description string
	}{
		{
			name:   "internal error hides its description",
			err:    dErrors.New(dErrors.CodeInternal, "storage failure"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
		{
			name:        "bad limit",
			err:         dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"),
			status:      http.StatusBadRequest,
			code:        "bad_request",
			description: "limit must be a positive integer",
		},
		{
			name:        "unknown alert",
			err:         fmt.Errorf("resend R1: %w", dErrors.New(dErrors.CodeNotFound, "no open alert for license id")),
			status:      http.StatusNotFound,
			code:        "not_found",
			description: "no open alert for license id",
		},
		{
			name:   "uncoded error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.code, body["error"])
			if tt.description == "" {
				assert.NotContains(t, body, "error_description")
			} else {
				assert.Equal(t, tt.description, body["error_description"])
			}
		})
	}
}

func TestWriteJSONNilBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusNoContent, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestStatusFor(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeBadRequest:   http.StatusBadRequest,
		dErrors.CodeValidation:   http.StatusBadRequest,
		dErrors.CodeNotFound:     http.StatusNotFound,
		dErrors.CodeConflict:     http.StatusConflict,
		dErrors.CodeUnauthorized: http.StatusUnauthorized,
		dErrors.CodeTimeout:      http.StatusGatewayTimeout,
		dErrors.CodeUnavailable:  http.StatusServiceUnavailable,
		dErrors.CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, StatusFor(code), code)
	}
}
