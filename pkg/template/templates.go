package template

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Service renders email bodies from a base layout plus a per-event-type body
// template. Template files live under the configured directory as
// base.html + <event_type>.html (lowercased).
type Service struct {
	emailPath string
}

func NewService(emailPath string) *Service {
	return &Service{emailPath: emailPath}
}

func (t *Service) RenderEmail(eventType string, data any) (string, error) {
	tmplName := strings.ToLower(eventType)

	var dataMap map[string]any
	switch v := data.(type) {
	case map[string]any:
		dataMap = v
	default:
		dataMap = map[string]any{}
		if data != nil {
			dataMap["Data"] = data
		}
	}

	basePath := fmt.Sprintf("%s/base.html", t.emailPath)
	bodyPath := fmt.Sprintf("%s/%s.html", t.emailPath, tmplName)

	tmpl, err := template.ParseFiles(basePath, bodyPath)
	if err != nil {
		return "", fmt.Errorf("parse email templates: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", dataMap); err != nil {
		return "", fmt.Errorf("execute email template: %w", err)
	}
	return buf.String(), nil
}
