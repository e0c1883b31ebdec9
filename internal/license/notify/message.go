package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"licensewatch/internal/license/models"
)

const checkedOnLayout = "Mon Jan 2 15:04:05 2006 MST"

var bodyTemplate = template.Must(template.New("alerts").Funcs(template.FuncMap{
	"orNA": func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	},
	"checked": func(t time.Time) string {
		if t.IsZero() {
			return "N/A"
		}
		return t.UTC().Format(checkedOnLayout)
	},
}).Parse(`<p>The following members have been flagged with license issues:</p><ul>
{{- range . }}
<li><b>Name:</b> {{ orNA .Name }}<br><b>License Number:</b> {{ orNA .LicenseID }}<br><b>Reported Status:</b> {{ .ReportedStatus }}<br><b>Checked On:</b> {{ checked .LastChecked }}</li>
{{- end }}
</ul><p>Please review these records.</p>`))

func subjectFor(prefix string, n int) string {
	return fmt.Sprintf("%s: %d Member(s) with License Issues", prefix, n)
}

func renderBody(alerts []models.Alert) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, alerts); err != nil {
		return "", fmt.Errorf("render notification body: %w", err)
	}
	return buf.String(), nil
}
