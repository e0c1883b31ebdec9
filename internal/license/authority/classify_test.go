package authority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"licensewatch/internal/license/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		resp *models.AuthorityResponse
		want models.Status
	}{
		{"nil response", nil, models.StatusError},
		{"not found flag", &models.AuthorityResponse{NotFound: true}, models.StatusNotFound},
		{"active", &models.AuthorityResponse{StatusText: "Active"}, models.StatusActive},
		{"registered active", &models.AuthorityResponse{StatusText: "Registered - Active"}, models.StatusActive},
		{"inactive is not active", &models.AuthorityResponse{StatusText: "Inactive"}, models.StatusInactive},
		{"suspended", &models.AuthorityResponse{StatusText: "SUSPENDED"}, models.StatusInactive},
		{"terminated", &models.AuthorityResponse{StatusText: "Terminated by registrar"}, models.StatusInactive},
		{"expired", &models.AuthorityResponse{StatusText: "expired"}, models.StatusInactive},
		{"active with suspension suffix", &models.AuthorityResponse{StatusText: "Active - Suspended"}, models.StatusInactive},
		{"expired then active", &models.AuthorityResponse{StatusText: "Expired (was Active)"}, models.StatusInactive},
		{"registrant active, licence inactive", &models.AuthorityResponse{StatusText: "Registrant Active / Licence Inactive"}, models.StatusInactive},
		{"suspension lifted reads as active", &models.AuthorityResponse{StatusText: "Suspension lifted - Active"}, models.StatusActive},
		{"unrecognized", &models.AuthorityResponse{StatusText: "pending review"}, models.StatusNotFound},
		{"empty text", &models.AuthorityResponse{}, models.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.resp))
		})
	}
}
