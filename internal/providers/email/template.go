package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

const TemplateStreamReady = "stream_ready"

const defaultSubject = "Notification from Streamgate"

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// render executes templateName and picks a subject: data["subject"] when
// present, otherwise a per-template default.
func render(templateName string, data interface{}) (subject string, body string, err error) {
	t := templates.Lookup(templateName + ".html")
	if t == nil {
		return "", "", fmt.Errorf("unknown email template %q", templateName)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute template: %w", err)
	}

	subject = defaultSubject
	if dataMap, ok := data.(map[string]interface{}); ok {
		if subj, ok := dataMap["subject"].(string); ok && subj != "" {
			return subj, buf.String(), nil
		}
	}
	switch templateName {
	case TemplateStreamReady:
		subject = "Your streaming server is ready"
	}
	return subject, buf.String(), nil
}
