package authority

import (
	"strings"

	"licensewatch/internal/license/models"
)

// Negative keywords are matched before "active" because "inactive" contains it.
// Any negative keyword wins, so mixed text such as "Active - Suspended" is inactive.
var inactiveKeywords = []string{"terminated", "expired", "suspended", "inactive"}

// Classify maps an authority answer onto the license status enum. A nil
// response is an error; anything the authority returned that is not
// recognisably active or inactive is treated as not found.
func Classify(resp *models.AuthorityResponse) models.Status {
	if resp == nil {
		return models.StatusError
	}
	if resp.NotFound {
		return models.StatusNotFound
	}
	text := strings.ToLower(strings.TrimSpace(resp.StatusText))
	for _, kw := range inactiveKeywords {
		if strings.Contains(text, kw) {
			return models.StatusInactive
		}
	}
	if strings.Contains(text, "active") {
		return models.StatusActive
	}
	return models.StatusNotFound
}
