package notify

import (
	"bytes"
	"os"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/forgo/hiretrack/api/internal/model"
)

// fallbackKey selects the template used for stages without their own entry
const fallbackKey = "default"

// MessageTemplate is one subject/body pair as written in the overrides file
type MessageTemplate struct {
	Subject string `toml:"subject"`
	Body    string `toml:"body"`
}

// templateFile is the TOML layout:
//
//	[stages.Applied]
//	subject = "We received your application for {{.JobTitle}}"
//	body = "..."
//
//	[stages.default]
//	subject = "..."
type templateFile struct {
	Stages map[string]MessageTemplate `toml:"stages"`
}

var defaultTemplates = map[string]MessageTemplate{
	string(model.StageApplied): {
		Subject: "Application received: {{.JobTitle}}",
		Body:    "Hi {{.CandidateName}}, thanks for applying to {{.JobTitle}}. We will be in touch as your application moves forward.",
	},
	string(model.StageHired): {
		Subject: "Offer accepted: {{.JobTitle}}",
		Body:    "Congratulations {{.CandidateName}}! Your application for {{.JobTitle}} is now marked as Hired.",
	},
	string(model.StageRejected): {
		Subject: "Update on your application for {{.JobTitle}}",
		Body:    "Hi {{.CandidateName}}, thank you for your interest in {{.JobTitle}}. We have decided not to move forward with your application.",
	},
	fallbackKey: {
		Subject: "Application update: {{.JobTitle}}",
		Body:    "Hi {{.CandidateName}}, your application for {{.JobTitle}} moved from {{.OldStage}} to {{.NewStage}}.",
	},
}

// templateData is what templates can reference
type templateData struct {
	CandidateName string
	JobTitle      string
	OldStage      string
	NewStage      string
	ApplicationID string
}

type compiledTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Templates renders stage events into email subject and body
type Templates struct {
	byStage map[string]compiledTemplate
}

// DefaultTemplates returns the built-in message set
func DefaultTemplates() *Templates {
	t, err := compileTemplates(defaultTemplates)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadTemplates overlays the TOML file at path on the built-in set. An empty
// path returns the defaults.
func LoadTemplates(path string) (*Templates, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTemplates(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read templates %s", path)
	}
	return ParseTemplates(raw)
}

// ParseTemplates overlays TOML overrides on the built-in set
func ParseTemplates(raw []byte) (*Templates, error) {
	var file templateFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}

	merged := make(map[string]MessageTemplate, len(defaultTemplates))
	for k, v := range defaultTemplates {
		merged[k] = v
	}
	for name, override := range file.Stages {
		key := fallbackKey
		if !strings.EqualFold(name, fallbackKey) {
			stage, err := model.ParseStage(name)
			if err != nil {
				return nil, errors.Wrapf(err, "templates: stages.%s", name)
			}
			key = string(stage)
		}

		base := merged[key]
		if override.Subject != "" {
			base.Subject = override.Subject
		}
		if override.Body != "" {
			base.Body = override.Body
		}
		merged[key] = base
	}

	fallback := merged[fallbackKey]
	for key, mt := range merged {
		if mt.Subject == "" {
			mt.Subject = fallback.Subject
		}
		if mt.Body == "" {
			mt.Body = fallback.Body
		}
		merged[key] = mt
	}

	return compileTemplates(merged)
}

func compileTemplates(set map[string]MessageTemplate) (*Templates, error) {
	out := &Templates{byStage: make(map[string]compiledTemplate, len(set))}
	sample := templateData{CandidateName: "x", JobTitle: "x", OldStage: "x", NewStage: "x", ApplicationID: "x"}

	for key, mt := range set {
		subject, err := template.New(key + ".subject").Parse(mt.Subject)
		if err != nil {
			return nil, errors.Wrapf(err, "template %s subject", key)
		}
		body, err := template.New(key + ".body").Parse(mt.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "template %s body", key)
		}
		// unknown fields only fail at execution
		if err := subject.Execute(&bytes.Buffer{}, sample); err != nil {
			return nil, errors.Wrapf(err, "template %s subject", key)
		}
		if err := body.Execute(&bytes.Buffer{}, sample); err != nil {
			return nil, errors.Wrapf(err, "template %s body", key)
		}
		out.byStage[key] = compiledTemplate{subject: subject, body: body}
	}
	return out, nil
}

// Render produces the subject and body for an event
func (t *Templates) Render(event model.StageEvent) (string, string, error) {
	tmpl, ok := t.byStage[string(event.NewStage)]
	if !ok {
		tmpl, ok = t.byStage[fallbackKey]
	}
	if !ok {
		return "", "", errors.Newf("no template for stage %s", event.NewStage)
	}

	data := templateData{
		CandidateName: event.RecipientName,
		JobTitle:      event.JobTitle,
		NewStage:      string(event.NewStage),
		ApplicationID: event.ApplicationID,
	}
	if data.CandidateName == "" {
		data.CandidateName = "there"
	}
	if data.JobTitle == "" {
		data.JobTitle = "your application"
	}
	if event.OldStage != nil {
		data.OldStage = string(*event.OldStage)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", errors.Wrap(err, "render subject")
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", errors.Wrap(err, "render body")
	}
	return strings.TrimSpace(subject.String()), strings.TrimSpace(body.String()), nil
}
