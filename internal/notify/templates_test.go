package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/hiretrack/api/internal/model"
)

func TestTemplates_Defaults(t *testing.T) {
	t.Parallel()
	tmpl := DefaultTemplates()

	tests := []struct {
		name        string
		event       model.StageEvent
		wantSubject string
		wantBody    string
	}{
		{
			name:        "creation",
			event:       model.StageEvent{NewStage: model.StageApplied, JobTitle: "SRE", RecipientName: "Casey"},
			wantSubject: "Application received: SRE",
			wantBody:    "Hi Casey, thanks for applying to SRE.",
		},
		{
			name:        "rejection",
			event:       model.StageEvent{NewStage: model.StageRejected, JobTitle: "SRE"},
			wantSubject: "Update on your application for SRE",
			wantBody:    "Hi there,",
		},
		{
			name:        "fallback",
			event:       screeningEvent(),
			wantSubject: "Application update: Backend Engineer",
			wantBody:    "moved from Applied to Screening",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body, err := tmpl.Render(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, subject)
			assert.Contains(t, body, tt.wantBody)
		})
	}
}

func TestParseTemplates_OverridesByStageName(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseTemplates([]byte(`
[stages.interview]
subject = "Interview invite for {{.JobTitle}}"

[stages.default]
body = "Status: {{.NewStage}}"
`))
	require.NoError(t, err)

	subject, body, err := tmpl.Render(model.StageEvent{NewStage: model.StageInterview, JobTitle: "SRE"})
	require.NoError(t, err)
	assert.Equal(t, "Interview invite for SRE", subject)
	assert.Equal(t, "Status: Interview", body, "stage without a body uses the default body")

	subject, _, err = tmpl.Render(model.StageEvent{NewStage: model.StageApplied, JobTitle: "SRE"})
	require.NoError(t, err)
	assert.Equal(t, "Application received: SRE", subject, "untouched stages keep built-ins")
}

func TestParseTemplates_Rejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown stage": "[stages.ghosted]\nsubject = \"x\"\n",
		"bad syntax":    "[stages.Offer]\nsubject = \"{{.JobTitle\"\n",
		"unknown field": "[stages.Offer]\nbody = \"{{.Salary}}\"\n",
		"not toml":      "stages = [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTemplates([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadTemplates_FromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "templates.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stages.Hired]\nsubject = \"Welcome aboard\"\n"), 0o600))

	tmpl, err := LoadTemplates(path)
	require.NoError(t, err)
	subject, _, err := tmpl.Render(model.StageEvent{NewStage: model.StageHired})
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard", subject)

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	defaults, err := LoadTemplates("")
	require.NoError(t, err)
	assert.NotNil(t, defaults)
}
