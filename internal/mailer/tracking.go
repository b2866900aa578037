package mailer

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	hrefPattern   = regexp.MustCompile(`href="(https?://[^"]+)"`)
	bodyClose     = regexp.MustCompile(`(?i)</body>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankLines    = regexp.MustCompile(`\n\s*\n+`)
	styleOrScript = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)>`)
)

// TransparentGIF is a 1x1 transparent pixel served by the open tracking endpoint.
var TransparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

func OpenURL(baseURL, trackingID string) string {
	return fmt.Sprintf("%s/api/email/track/open/%s", strings.TrimRight(baseURL, "/"), url.PathEscape(trackingID))
}

func ClickURL(baseURL, trackingID, target string) string {
	return fmt.Sprintf("%s/api/email/track/click/%s?url=%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(trackingID), url.QueryEscape(target))
}

// InjectTracking rewrites absolute http(s) links through the click endpoint and adds
// the open pixel before </body>, or at the end when the document has no body tag.
func InjectTracking(body, baseURL, trackingID string) string {
	rewritten := hrefPattern.ReplaceAllStringFunc(body, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		target = html.UnescapeString(target)
		return `href="` + html.EscapeString(ClickURL(baseURL, trackingID, target)) + `"`
	})

	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none" />`,
		html.EscapeString(OpenURL(baseURL, trackingID)))

	if loc := bodyClose.FindStringIndex(rewritten); loc != nil {
		return rewritten[:loc[0]] + pixel + rewritten[loc[0]:]
	}
	return rewritten + pixel
}

// SafeRedirect accepts only absolute http and https URLs with a host.
func SafeRedirect(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// PlainText gives a readable fallback body for HTML-only templates.
func PlainText(body string) string {
	text := styleOrScript.ReplaceAllString(body, "")
	text = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n").Replace(text)
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
