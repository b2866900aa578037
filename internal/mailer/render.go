// Package mailer renders email templates, injects open/click tracking and hands
// finished messages to a delivery backend.
package mailer

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"mindtrack/internal/domains"
)

var ErrTemplateInvalid = errors.New("email template is invalid")

// Standard variable names available to every template.
const (
	VarRecipientName      = "RecipientName"
	VarQuestionnaireTitle = "QuestionnaireTitle"
	VarLink               = "Link"
	VarOrganizationName   = "OrganizationName"
	VarExpiresAt          = "ExpiresAt"
)

// Render executes subject and text with text/template and html with html/template.
// Missing variables render as empty strings. An empty text body is derived from the
// rendered HTML.
func Render(subject, html, text string, vars map[string]string) (domains.RenderedEmail, error) {
	if vars == nil {
		vars = map[string]string{}
	}

	renderedSubject, err := renderText("subject", subject, vars)
	if err != nil {
		return domains.RenderedEmail{}, err
	}

	tpl, err := htmltemplate.New("body_html").Option("missingkey=zero").Parse(html)
	if err != nil {
		return domains.RenderedEmail{}, fmt.Errorf("%w: body_html: %v", ErrTemplateInvalid, err)
	}
	var htmlBuf bytes.Buffer
	if err := tpl.Execute(&htmlBuf, vars); err != nil {
		return domains.RenderedEmail{}, fmt.Errorf("%w: body_html: %v", ErrTemplateInvalid, err)
	}

	renderedText := ""
	if strings.TrimSpace(text) != "" {
		renderedText, err = renderText("body_text", text, vars)
		if err != nil {
			return domains.RenderedEmail{}, err
		}
	} else {
		renderedText = PlainText(htmlBuf.String())
	}

	return domains.RenderedEmail{
		Subject:  strings.TrimSpace(renderedSubject),
		BodyHTML: htmlBuf.String(),
		BodyText: renderedText,
	}, nil
}

// Check parses all parts without executing them.
func Check(subject, html string, text *string) error {
	if _, err := texttemplate.New("subject").Parse(subject); err != nil {
		return fmt.Errorf("%w: subject: %v", ErrTemplateInvalid, err)
	}
	if _, err := htmltemplate.New("body_html").Parse(html); err != nil {
		return fmt.Errorf("%w: body_html: %v", ErrTemplateInvalid, err)
	}
	if text != nil {
		if _, err := texttemplate.New("body_text").Parse(*text); err != nil {
			return fmt.Errorf("%w: body_text: %v", ErrTemplateInvalid, err)
		}
	}
	return nil
}

func renderText(name, source string, vars map[string]string) (string, error) {
	tpl, err := texttemplate.New(name).Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTemplateInvalid, name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTemplateInvalid, name, err)
	}
	return buf.String(), nil
}

// MergeVariables layers extras over base. Empty extra values do not clear base values.
func MergeVariables(base map[string]string, extras ...map[string]string) map[string]string {
	merged := make(map[string]string, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, extra := range extras {
		for k, v := range extra {
			if v == "" {
				if _, ok := merged[k]; ok {
					continue
				}
			}
			merged[k] = v
		}
	}
	return merged
}
