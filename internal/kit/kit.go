package kit

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"

	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Builder renders history items as text sheets and notification messages
type Builder struct {
	sheet *template.Template
	email *htmltemplate.Template
}

// New parses the built-in templates
func New() (*Builder, error) {
	funcs := template.FuncMap{
		"hashtags": Hashtags,
		"join":     strings.Join,
	}
	sheet, err := template.New("sheet").Funcs(funcs).Parse(sheetTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse sheet template")
	}
	email, err := htmltemplate.New("email").Funcs(htmltemplate.FuncMap(funcs)).Parse(emailTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse email template")
	}
	return &Builder{sheet: sheet, email: email}, nil
}

// Message is a rendered notification ready for sending
type Message struct {
	Subject   string
	HTMLBody  string
	PlainBody string
}

type sheetData struct {
	Prompt    string
	Prayer    string
	Subthemes []string
	Long      *types.LongPost
	Social    *types.SocialPost
}

type emailData struct {
	Title    string
	Language string
	Type     types.JobClass
	Date     string
	Theme    string
	Hashtags []string
	Media    []string
}

// Sheet renders the plain-text content sheet of a kit.
func (b *Builder) Sheet(item types.HistoryItem) (string, error) {
	data := sheetData{
		Prompt:    item.Prompt,
		Prayer:    item.Prayer,
		Subthemes: item.Subthemes,
		Long:      item.LongPost,
		Social:    item.SocialPost,
	}
	var buf bytes.Buffer
	if err := b.sheet.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "failed to render sheet for %s", item.ID)
	}
	return buf.String(), nil
}

// Email renders the "kit ready" notification for item.
func (b *Builder) Email(item types.HistoryItem) (*Message, error) {
	title := item.Title()
	if title == "" {
		title = truncate(item.Prompt, 80)
	}

	data := emailData{
		Title:    title,
		Language: strings.ToUpper(string(item.Language)),
		Type:     item.Type,
		Date:     item.CreatedAt().Format("Monday, January 2 15:04"),
		Theme:    item.Prompt,
	}
	switch {
	case item.LongPost != nil:
		data.Hashtags = item.LongPost.Hashtags
	case item.SocialPost != nil:
		data.Hashtags = item.SocialPost.Hashtags
	}
	if item.AudioBlobKey != "" {
		data.Media = append(data.Media, "narration.wav")
	}
	if item.ImageBlobKey != "" {
		data.Media = append(data.Media, "visual.png")
	}

	var htmlBuf bytes.Buffer
	if err := b.email.Execute(&htmlBuf, data); err != nil {
		return nil, errors.Wrapf(err, "failed to render email for %s", item.ID)
	}
	plain, err := b.Sheet(item)
	if err != nil {
		return nil, err
	}

	return &Message{
		Subject:   subject(item, title),
		HTMLBody:  htmlBuf.String(),
		PlainBody: plain,
	}, nil
}

func subject(item types.HistoryItem, title string) string {
	return "[" + strings.ToUpper(string(item.Language)) + " " + string(item.Type) + "] " + title
}

// Hashtags joins tags with spaces, adding the leading '#' where missing.
func Hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

const sheetTemplate = `PROMPT: {{.Prompt}}
{{- if .Subthemes}}
SUBTHEMES: {{join .Subthemes ", "}}
{{- end}}

====================
SCRIPT (PRAYER)
====================

{{.Prayer}}

{{with .Long -}}
====================
YOUTUBE POST
====================

TITLE: {{.Title}}

DESCRIPTION:
{{.Description}}

HASHTAGS: {{join .Hashtags " "}}

TIMESTAMPS:
{{.Timestamps}}

TAGS: {{join .Tags ", "}}
{{end -}}
{{with .Social -}}
====================
SOCIAL MEDIA POST
====================

TITLE: {{.Title}}

DESCRIPTION:
{{.Description}}

HASHTAGS: {{hashtags .Hashtags}}
{{end -}}
`

const emailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #6b4fbb; margin-bottom: 5px; }
        .meta { color: #666; margin-bottom: 20px; }
        .theme { margin: 10px 0; line-height: 1.4; }
        .tag { background: #f0ebfa; color: #6b4fbb; padding: 2px 8px; border-radius: 12px; font-size: 12px; margin-right: 5px; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="meta">{{.Language}} · {{.Type}} · {{.Date}}</div>
        <div class="theme">{{.Theme}}</div>
        <div>{{range .Hashtags}}<span class="tag">{{.}}</span>{{end}}</div>
        {{if .Media}}<p>Media: {{join .Media ", "}}</p>{{end}}
        <div class="footer">Generated by prayerkit</div>
    </div>
</body>
</html>`
