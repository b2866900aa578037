package mailer

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindtrack/internal/config"
)

func TestRender(t *testing.T) {
	rendered, err := Render(
		"Hello {{.RecipientName}}",
		`<p>Please complete <b>{{.QuestionnaireTitle}}</b>: <a href="{{.Link}}">open</a>{{.Missing}}</p>`,
		"",
		map[string]string{
			VarRecipientName:      "Ann",
			VarQuestionnaireTitle: "PHQ-9 <weekly>",
			VarLink:               "https://app.example.com/q?token=a&b=c",
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "Hello Ann", rendered.Subject)
	assert.Contains(t, rendered.BodyHTML, "PHQ-9 &lt;weekly&gt;")
	assert.NotContains(t, rendered.BodyHTML, "no value")
	assert.Equal(t, "Please complete PHQ-9 <weekly>: open", rendered.BodyText)
}

func TestRender_TextBodyAndMissingKeys(t *testing.T) {
	rendered, err := Render("{{.Subject}}", "<p>x</p>", "Hi {{.RecipientName}}!", nil)
	require.NoError(t, err)
	assert.Equal(t, "", rendered.Subject)
	assert.Equal(t, "Hi !", rendered.BodyText)
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{.Broken", "<p></p>", "", nil)
	assert.ErrorIs(t, err, ErrTemplateInvalid)

	assert.ErrorIs(t, Check("ok", "{{if}}", nil), ErrTemplateInvalid)
	assert.NoError(t, Check("ok", "<p>{{.Link}}</p>", nil))
}

func TestInjectTracking(t *testing.T) {
	body := `<html><body><a href="https://example.com/a?x=1&amp;y=2">a</a> <a href="mailto:x@y.z">m</a></body></html>`

	out := InjectTracking(body, "https://api.example.com/", "abc")

	assert.Contains(t, out, `href="https://api.example.com/api/email/track/click/abc?url=`+escapeAmp(url.QueryEscape("https://example.com/a?x=1&y=2"))+`"`)
	assert.Contains(t, out, `href="mailto:x@y.z"`)
	pixel := `<img src="https://api.example.com/api/email/track/open/abc"`
	require.Contains(t, out, pixel)
	assert.Less(t, strings.Index(out, pixel), strings.Index(out, "</body>"))
}

func TestInjectTracking_NoBody(t *testing.T) {
	out := InjectTracking("<p>hi</p>", "http://localhost:8080", "id-1")
	assert.True(t, strings.HasPrefix(out, "<p>hi</p><img "))
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://example.com/path", true},
		{"http://example.com", true},
		{"javascript:alert(1)", false},
		{"//evil.example.com", false},
		{"/relative", false},
		{"", false},
		{"ftp://example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, ok := SafeRedirect(tt.raw)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestMergeVariables(t *testing.T) {
	merged := MergeVariables(
		map[string]string{"A": "1", "B": "2"},
		map[string]string{"B": "", "C": "3"},
		map[string]string{"A": "override"},
	)
	assert.Equal(t, map[string]string{"A": "override", "B": "2", "C": "3"}, merged)
}

func TestNewSender(t *testing.T) {
	sender, err := NewSender(config.SMTPConfig{Sender: "log"})
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, sender)
	assert.NoError(t, sender.Send(context.Background(), Message{To: "a@b.c", Subject: "s"}))

	_, err = NewSender(config.SMTPConfig{Sender: "pigeon"})
	assert.Error(t, err)

	logSender := NewLogSender(slog.Default())
	assert.NoError(t, logSender.Send(context.Background(), Message{To: "x@y.z"}))
}

func escapeAmp(s string) string {
	return strings.ReplaceAll(s, "&", "&amp;")
}
